package market

import (
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	points []pointRecord
}

type pointRecord struct {
	key    string
	price  float64
	volume float64
}

func (s *recordingSink) AddPoint(seriesKey string, t time.Time, price, volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, pointRecord{key: seriesKey, price: price, volume: volume})
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func TestExchangeBeginPlayAnchorsClock(t *testing.T) {
	stocks := map[string]*Stock{
		"AAA": NewStock("AAA", "A Corp", CategoryTech, 10, 1000, 0.01, 1.0, 0.0),
	}
	ex := NewExchange("tmpl1", "Test Exchange", "", stocks, NewRNG(1), nil, 1)
	if ex.Clock() != nil {
		t.Fatal("clock should be nil before BeginPlay")
	}
	if err := ex.BeginPlay(); err != nil {
		t.Fatalf("BeginPlay: %v", err)
	}
	if ex.Clock() == nil {
		t.Fatal("clock should be set after BeginPlay")
	}
}

func TestExchangeTickMovesPricesAndEmitsPoints(t *testing.T) {
	stocks := map[string]*Stock{
		"AAA": NewStock("AAA", "A Corp", CategoryTech, 10, 1000, 0.01, 1.0, 0.0),
		"BBB": NewStock("BBB", "B Corp", CategoryFinance, 100, 1000, 0.01, 0.5, 0.0),
	}
	sink := &recordingSink{}
	ex := NewExchange("tmpl1", "Test Exchange", "", stocks, NewRNG(1), sink, 1)
	ex.BeginPlay()

	for i := 0; i < 10; i++ {
		if err := ex.Tick(1.0); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	if sink.count() != 20 {
		t.Fatalf("emitted %d points, want 20 (2 symbols x 10 ticks)", sink.count())
	}
	for _, stock := range stocks {
		if stock.Price() <= 0 {
			t.Fatalf("price went non-positive: %v", stock.Price())
		}
	}
}

func TestExchangeSampleIntervalSkipsFrames(t *testing.T) {
	stocks := map[string]*Stock{
		"AAA": NewStock("AAA", "A Corp", CategoryTech, 10, 1000, 0.01, 1.0, 0.0),
	}
	sink := &recordingSink{}
	ex := NewExchange("tmpl1", "Test Exchange", "", stocks, NewRNG(1), sink, 5)
	ex.BeginPlay()

	for i := 0; i < 10; i++ {
		ex.Tick(1.0)
	}

	if sink.count() != 2 {
		t.Fatalf("emitted %d points, want 2 (1 symbol every 5th of 10 ticks)", sink.count())
	}
}
