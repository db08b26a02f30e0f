package series

import "time"

// Bucket is one OHLCV aggregate for a (series, granularity) window.
// Immutable once its window has passed; the manager returns copies, so
// callers never observe a torn read of the current (still-mutable)
// bucket.
type Bucket struct {
	WindowStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

func newBucket(windowStart time.Time, price, volume float64) Bucket {
	return Bucket{
		WindowStart: windowStart,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      volume,
	}
}

func (b *Bucket) update(price, volume float64) {
	if price > b.High {
		b.High = price
	}
	if price < b.Low {
		b.Low = price
	}
	b.Close = price
	b.Volume += volume
}
