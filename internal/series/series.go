package series

import (
	"sort"
	"sync"
	"time"

	"github.com/ndrandal/marketsim/internal/marketerr"
)

// DataType tags what kind of raw values a series carries.
type DataType string

const (
	DataTypePrice DataType = "price"
	DataTypeVolume DataType = "volume"
	DataTypeTrade  DataType = "trade"
)

// Delta is emitted on every finalize-or-update of a bucket, the unit
// the push bus fans out to (symbol, granularity) subscribers.
type Delta struct {
	Key         string
	Granularity Granularity
	Bucket      Bucket
}

// DefaultRetention is the per-(series,granularity) rolling cap on
// finalized buckets kept in history.
const DefaultRetention = 5000

// DefaultQueryLimit bounds queryAggregated results when no limit is given.
const DefaultQueryLimit = 500

type granularityState struct {
	current *Bucket
	history []Bucket // ascending WindowStart, capped at retention
}

type seriesState struct {
	mu         sync.Mutex
	dataType   DataType
	metrics    []string
	lastTs     time.Time
	hasPoint   bool
	byGran     map[Granularity]*granularityState
	retention  int
}

// Manager owns every declared series and its eight granularity
// aggregators. Ingestion for a given series key is single-writer (the
// owning exchange's tick goroutine); queries may run concurrently.
type Manager struct {
	mu       sync.RWMutex
	series   map[string]*seriesState
	onDelta  func(Delta)
	retention int
}

// New creates an empty Manager. onDelta, if non-nil, is invoked
// synchronously from AddPoint for every bucket finalize-or-update; it
// should hand off to the push bus without blocking.
func New(onDelta func(Delta)) *Manager {
	return &Manager{
		series:    make(map[string]*seriesState),
		onDelta:   onDelta,
		retention: DefaultRetention,
	}
}

// SetRetention overrides the default per-(series,granularity) bucket
// cap. Call before series are created.
func (m *Manager) SetRetention(n int) {
	if n > 0 {
		m.retention = n
	}
}

// CreateSeries declares a new series. Duplicates are rejected with
// SeriesExists.
func (m *Manager) CreateSeries(key string, dataType DataType, metrics []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.series[key]; exists {
		return marketerr.Withf(marketerr.SeriesExists, "series %q already exists", key)
	}

	byGran := make(map[Granularity]*granularityState, len(AllGranularities()))
	for _, g := range AllGranularities() {
		byGran[g] = &granularityState{}
	}
	m.series[key] = &seriesState{
		dataType:  dataType,
		metrics:   append([]string(nil), metrics...),
		byGran:    byGran,
		retention: m.retention,
	}
	return nil
}

func (m *Manager) get(key string) (*seriesState, error) {
	m.mu.RLock()
	s, ok := m.series[key]
	m.mu.RUnlock()
	if !ok {
		return nil, marketerr.Withf(marketerr.SeriesNotFound, "series %q not found", key)
	}
	return s, nil
}

// AddPoint routes one raw point to every granularity aggregator of
// series key. Timestamps must be non-decreasing per series; an
// out-of-order point is rejected with TimestampRegression rather than
// buffered for reorder.
func (m *Manager) AddPoint(key string, t time.Time, price, volume float64) error {
	s, err := m.get(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasPoint && t.Before(s.lastTs) {
		return marketerr.Withf(marketerr.TimestampRegression, "series %q received timestamp %v before last %v", key, t, s.lastTs)
	}
	s.lastTs = t
	s.hasPoint = true

	for _, g := range AllGranularities() {
		gs := s.byGran[g]
		windowStart := floorWindow(t, g)

		if gs.current != nil && gs.current.WindowStart.Equal(windowStart) {
			gs.current.update(price, volume)
		} else {
			if gs.current != nil {
				gs.history = append(gs.history, *gs.current)
				if len(gs.history) > s.retention {
					gs.history = gs.history[len(gs.history)-s.retention:]
				}
			}
			b := newBucket(windowStart, price, volume)
			gs.current = &b
		}

		if m.onDelta != nil {
			m.onDelta(Delta{Key: key, Granularity: g, Bucket: *gs.current})
		}
	}
	return nil
}

// QueryAggregated returns buckets of key at granularity g whose
// WindowStart lies in [startTime, endTime), ascending, capped at
// limit (DefaultQueryLimit if limit <= 0). The current (mutable)
// bucket is included if its WindowStart falls in range.
func (m *Manager) QueryAggregated(key string, g Granularity, startTime, endTime time.Time, limit int) ([]Bucket, error) {
	if !g.Valid() {
		return nil, marketerr.Withf(marketerr.ValidationFailed, "invalid granularity %q", g)
	}
	s, err := m.get(key)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	s.mu.Lock()
	gs := s.byGran[g]
	all := make([]Bucket, 0, len(gs.history)+1)
	for _, b := range gs.history {
		all = append(all, b)
	}
	if gs.current != nil {
		all = append(all, *gs.current)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].WindowStart.Before(all[j].WindowStart) })

	out := make([]Bucket, 0, limit)
	for _, b := range all {
		if (b.WindowStart.Equal(startTime) || b.WindowStart.After(startTime)) && b.WindowStart.Before(endTime) {
			out = append(out, b)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// GetLatest returns the single most recent bucket (the current bucket,
// if any point has been ingested; otherwise the last historical one).
func (m *Manager) GetLatest(key string, g Granularity) (Bucket, bool, error) {
	s, err := m.get(key)
	if err != nil {
		return Bucket{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	gs := s.byGran[g]
	if gs.current != nil {
		return *gs.current, true, nil
	}
	if len(gs.history) > 0 {
		return gs.history[len(gs.history)-1], true, nil
	}
	return Bucket{}, false, nil
}

// ClearBefore drops all historical buckets of key across every
// granularity with WindowStart < t. The current bucket is never
// dropped, even if its WindowStart predates t.
func (m *Manager) ClearBefore(key string, t time.Time) error {
	s, err := m.get(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, gs := range s.byGran {
		kept := gs.history[:0]
		for _, b := range gs.history {
			if !b.WindowStart.Before(t) {
				kept = append(kept, b)
			}
		}
		gs.history = kept
	}
	return nil
}
