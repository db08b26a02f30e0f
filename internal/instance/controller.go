package instance

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ndrandal/marketsim/internal/factory"
	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/pushbus"
	"github.com/ndrandal/marketsim/internal/series"
)

// Controller owns every live market instance and mediates creation
// through the factory. One Controller is shared process-wide; every
// instance it tracks has its own Lifecycle Manager, tick loop, and
// push bus running independently.
type Controller struct {
	fac *factory.Factory

	mu         sync.RWMutex
	instances  map[string]*Instance
	requestIns map[string]string // requestId -> instance id, cleared once terminal
	insReq     map[string]string // instance id -> requestId, cleared once the build completes
	owners     map[string]string // instance id -> owner id, from Create through Destroy

	// OnInstanceReady, if set, is invoked once an instance finishes
	// building and is registered under its reserved id. A caller outside
	// this package (main's persistence wiring) uses it to attach a
	// trade-history subscriber without racing instance creation.
	OnInstanceReady func(instanceId string)
}

// New creates a Controller driven by fac and sets fac's OnComplete to
// Controller.onBuildComplete.
func New(fac *factory.Factory) *Controller {
	c := &Controller{
		fac:        fac,
		instances:  make(map[string]*Instance),
		requestIns: make(map[string]string),
		insReq:     make(map[string]string),
		owners:     make(map[string]string),
	}
	fac.OnComplete = c.onBuildComplete
	return c
}

// Create reserves an instance id, submits the creation request to the
// factory, and returns both ids immediately; Create does not block on
// the pipeline completing. Poll GetProgress(requestId) for status.
// ownerId is recorded against the reserved instance id so later
// List/GetDetails/Destroy calls can scope by owner.
func (c *Controller) Create(templateId, name, ownerId string) (instanceId, requestId string, err error) {
	// Holding the lock across Submit keeps onBuildComplete from running
	// before the reservation below is in place.
	c.mu.Lock()
	defer c.mu.Unlock()

	requestId, err = c.fac.Submit(templateId, name)
	if err != nil {
		return "", "", err
	}

	instanceId = uuid.NewString()
	c.requestIns[requestId] = instanceId
	c.insReq[instanceId] = requestId
	c.owners[instanceId] = ownerId

	return instanceId, requestId, nil
}

// onBuildComplete is the factory's OnComplete hook: it adopts the
// finished build under the instance id reserved at Create time.
func (c *Controller) onBuildComplete(requestId string, result *factory.BuildResult) {
	c.mu.Lock()
	instanceId, ok := c.requestIns[requestId]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.requestIns, requestId)
	delete(c.insReq, instanceId)
	c.instances[instanceId] = &Instance{
		Id:         instanceId,
		TemplateId: result.TemplateId,
		Name:       result.Name,
		OwnerId:    c.owners[instanceId],
		CreatedAt:  time.Now(),
		Status:     StatusActive,
		Build:      result,
	}
	ready := c.OnInstanceReady
	c.mu.Unlock()

	if ready != nil {
		ready(instanceId)
	}
}

// GetProgress reports the factory's progress record for requestId.
func (c *Controller) GetProgress(requestId string) (factory.ProgressRecord, error) {
	rec, ok := c.fac.Progress().Get(requestId)
	if !ok {
		return factory.ProgressRecord{}, marketerr.Withf(marketerr.RequestNotFound, "no progress record for request %q", requestId)
	}
	return rec, nil
}

// SubscribeProgress attaches a new pushbus subscriber to the factory's
// progress bus; events for every in-flight request arrive there,
// keyed by request id, so the caller filters for the one it wants.
func (c *Controller) SubscribeProgress() *pushbus.Subscriber {
	return c.fac.ProgressBus().Subscribe()
}

// UnsubscribeProgress detaches sub from the factory's progress bus.
func (c *Controller) UnsubscribeProgress(sub *pushbus.Subscriber) {
	c.fac.ProgressBus().Unsubscribe(sub)
}

// get looks instanceId up, distinguishing an id that never existed
// (InstanceNotFound) from one that is still being built
// (InstanceBusy) so a caller racing Create's async pipeline gets an
// accurate answer instead of a false not-found.
func (c *Controller) get(instanceId string) (*Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[instanceId]
	if ok {
		return inst, nil
	}
	if _, building := c.insReq[instanceId]; building {
		return nil, marketerr.Withf(marketerr.InstanceBusy, "instance %q is still building", instanceId)
	}
	return nil, marketerr.Withf(marketerr.InstanceNotFound, "instance %q not found", instanceId)
}

// authorize fetches instanceId and checks that ownerId owns it,
// returning Forbidden rather than leaking the instance's existence
// when it belongs to someone else.
func (c *Controller) authorize(instanceId, ownerId string) (*Instance, error) {
	inst, err := c.get(instanceId)
	if err != nil {
		return nil, err
	}
	if ownerId != "" && inst.OwnerId != "" && inst.OwnerId != ownerId {
		return nil, marketerr.Withf(marketerr.Forbidden, "instance %q is not owned by caller", instanceId)
	}
	return inst, nil
}

// List returns a summary of every instance owned by userId, sorted by
// id for a stable page order. An empty userId lists every instance.
func (c *Controller) List(userId string) []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Summary, 0, len(c.instances))
	for _, inst := range c.instances {
		if userId != "" && inst.OwnerId != userId {
			continue
		}
		out = append(out, summarize(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func summarize(inst *Instance) Summary {
	return Summary{
		Id:          inst.Id,
		TemplateId:  inst.TemplateId,
		Name:        inst.Name,
		OwnerId:     inst.OwnerId,
		Status:      inst.Status,
		CreatedAt:   inst.CreatedAt,
		StockCount:  len(inst.Exchange().Stocks()),
		TraderCount: len(inst.Build.Traders),
	}
}

// GetDetails returns the full roster and overview stats for one
// instance, failing with Forbidden if userId does not own it.
func (c *Controller) GetDetails(instanceId, userId string) (Details, error) {
	inst, err := c.authorize(instanceId, userId)
	if err != nil {
		return Details{}, err
	}
	return c.details(inst), nil
}

func (c *Controller) details(inst *Instance) Details {
	overview := inst.Build.LifecycleMgr.GetSystemOverview()

	stocks := make([]StockSnapshot, 0, len(inst.Exchange().Stocks()))
	symbols := make([]string, 0, len(inst.Exchange().Stocks()))
	for symbol := range inst.Exchange().Stocks() {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		s := inst.Exchange().Stocks()[symbol]
		stocks = append(stocks, StockSnapshot{
			Symbol:    s.Symbol,
			Name:      s.Name,
			Category:  string(s.Category),
			Price:     s.Price(),
			MarketCap: s.MarketCap(),
		})
	}

	traders := make([]TraderSnapshot, 0, len(inst.Build.Traders))
	for _, tr := range inst.Build.Traders {
		holdings := make(map[string]HoldingSnapshot, len(tr.Holdings()))
		for symbol, h := range tr.Holdings() {
			holdings[symbol] = HoldingSnapshot{Quantity: h.Quantity, AverageCost: h.AverageCost}
		}
		traders = append(traders, TraderSnapshot{
			Name:        tr.Name,
			RiskProfile: string(tr.RiskProfile),
			Style:       string(tr.Style),
			Capital:     tr.Capital(),
			Holdings:    holdings,
		})
	}

	simNow := time.Now()
	if clk := inst.Exchange().Clock(); clk != nil {
		simNow = clk.Now(time.Now())
	}

	return Details{
		Summary:       summarize(inst),
		Acceleration:  inst.Exchange().Acceleration(),
		SimulatedTime: simNow,
		ActualFPS:     overview.ActualFPS,
		Stocks:        stocks,
		Traders:       traders,
	}
}

// Destroy stops the instance's tick loop, requests destruction of every
// object it owns, and drops it from the controller's map. Fails with
// InstanceBusy if instanceId is still building and with Forbidden if
// userId does not own it.
func (c *Controller) Destroy(instanceId, userId string) error {
	inst, err := c.authorize(instanceId, userId)
	if err != nil {
		return err
	}

	inst.Build.LifecycleMgr.DestroyAll()
	if overview := inst.Build.LifecycleMgr.GetSystemOverview(); overview.IsRunning {
		_ = inst.Build.LifecycleMgr.Stop()
	}

	c.mu.Lock()
	inst.Status = StatusDestroyed
	delete(c.instances, instanceId)
	delete(c.owners, instanceId)
	c.mu.Unlock()
	return nil
}

// GetTime returns the instance's current simulated time.
func (c *Controller) GetTime(instanceId string) (time.Time, error) {
	inst, err := c.get(instanceId)
	if err != nil {
		return time.Time{}, err
	}
	clk := inst.Exchange().Clock()
	if clk == nil {
		return time.Time{}, marketerr.New(marketerr.IllegalState, "instance clock not yet started")
	}
	return clk.Now(time.Now()), nil
}

// SetAcceleration adjusts how fast simulated time advances relative to
// wall time for one instance.
func (c *Controller) SetAcceleration(instanceId string, factor float64) error {
	inst, err := c.get(instanceId)
	if err != nil {
		return err
	}
	if err := inst.Exchange().SetAcceleration(factor, time.Now()); err != nil {
		return marketerr.Withf(marketerr.InvalidAcceleration, "%v", err)
	}
	return nil
}

// GetKLine returns aggregated OHLCV buckets for one stock at one
// granularity within [startTime, endTime).
func (c *Controller) GetKLine(instanceId, symbol string, g series.Granularity, startTime, endTime time.Time, limit int) ([]series.Bucket, error) {
	inst, err := c.get(instanceId)
	if err != nil {
		return nil, err
	}
	if _, ok := inst.Exchange().Stocks()[symbol]; !ok {
		return nil, marketerr.Withf(marketerr.StockNotFound, "stock %q not found", symbol)
	}
	key := inst.Exchange().SeriesKeyPrefix + symbol
	return inst.Series().QueryAggregated(key, g, startTime, endTime, limit)
}

// Subscribe attaches a new pushbus subscriber to instanceId's bus, for
// a transport-level client to drain.
func (c *Controller) Subscribe(instanceId string) (*pushbus.Subscriber, error) {
	inst, err := c.get(instanceId)
	if err != nil {
		return nil, err
	}
	return inst.Bus().Subscribe(), nil
}

// Unsubscribe detaches sub from instanceId's bus. Safe to call even if
// the instance was destroyed in the meantime.
func (c *Controller) Unsubscribe(instanceId string, sub *pushbus.Subscriber) {
	inst, err := c.get(instanceId)
	if err != nil {
		return
	}
	inst.Bus().Unsubscribe(sub)
}

// Export produces a durable snapshot of one instance's current state,
// for internal/store to persist.
func (c *Controller) Export(instanceId string) (Export, error) {
	inst, err := c.get(instanceId)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Details:     c.details(inst),
		GeneratedAt: time.Now(),
	}, nil
}
