// Package series implements the time-series manager: per-(key,granularity)
// rolling OHLCV aggregation over raw points, with range queries and a
// delta feed for the push bus. Grounded on the teacher's
// internal/persist/queries.go bucket-floor arithmetic (epoch-millis
// div/mod bucketing inside a Mongo aggregation pipeline) combined with
// the other_examples aggregator.go's per-key candleState map idiom,
// adapted from "one 1-second candle for a whole stream" to "eight fixed
// granularities tracked independently per series key".
package series

import (
	"time"
)

// Granularity is one of the eight fixed bucket widths a series is
// aggregated at.
type Granularity string

const (
	Granularity1m  Granularity = "1m"
	Granularity5m  Granularity = "5m"
	Granularity15m Granularity = "15m"
	Granularity30m Granularity = "30m"
	Granularity1h  Granularity = "1h"
	Granularity1d  Granularity = "1d"
	Granularity1w  Granularity = "1w"
	Granularity1M  Granularity = "1M"
)

// AllGranularities lists every fixed granularity in ascending order.
func AllGranularities() []Granularity {
	return []Granularity{
		Granularity1m, Granularity5m, Granularity15m, Granularity30m,
		Granularity1h, Granularity1d, Granularity1w, Granularity1M,
	}
}

// Valid reports whether g is one of the eight fixed granularities.
func (g Granularity) Valid() bool {
	for _, v := range AllGranularities() {
		if v == g {
			return true
		}
	}
	return false
}

// duration returns the fixed window width for every granularity except
// 1M, whose width is calendar-month dependent and handled separately in
// floorWindow.
func (g Granularity) duration() time.Duration {
	switch g {
	case Granularity1m:
		return time.Minute
	case Granularity5m:
		return 5 * time.Minute
	case Granularity15m:
		return 15 * time.Minute
	case Granularity30m:
		return 30 * time.Minute
	case Granularity1h:
		return time.Hour
	case Granularity1d:
		return 24 * time.Hour
	case Granularity1w:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// floorWindow returns the start of the bucket window containing t at
// granularity g. Fixed-duration granularities use time.Truncate, which
// floors to a multiple of the width counted from Go's zero time
// (January 1, year 1, UTC): for widths up to 1d this matches flooring
// against the Unix epoch, and 1w windows start on Mondays. 1M floors to
// the first instant of t's calendar month in UTC.
func floorWindow(t time.Time, g Granularity) time.Time {
	if g == Granularity1M {
		u := t.UTC()
		return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	d := g.duration()
	if d <= 0 {
		return t
	}
	return t.UTC().Truncate(d)
}
