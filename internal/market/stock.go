package market

import (
	"sync"

	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/object"
)

// Stock is a single tradeable instrument: a symbol, a current price,
// and a ledger of trader holdings. Price changes are driven entirely
// by its owning Exchange; Stock's own tick hook is a no-op, per the
// entity's role as passive state the exchange coordinator mutates.
type Stock struct {
	mu sync.Mutex

	Id           object.Id
	Symbol       string
	Name         string
	Category     Category
	IssuePrice   float64
	TotalShares  int64
	TickSize     float64
	Volatility   float64
	DriftPerDay  float64 // configured expected daily log-return, bounded by the owning template

	price   float64
	holders map[object.Id]int64
}

// NewStock creates a Stock priced at its issue price with an empty
// holder ledger. driftPerDay is the expected daily log-return fed into
// the exchange's random walk, bounded by the template that declared it.
func NewStock(symbol, name string, category Category, issuePrice float64, totalShares int64, tickSize, volatility, driftPerDay float64) *Stock {
	return &Stock{
		Symbol:      symbol,
		Name:        name,
		Category:    category,
		IssuePrice:  issuePrice,
		TotalShares: totalShares,
		TickSize:    tickSize,
		Volatility:  volatility,
		DriftPerDay: driftPerDay,
		price:       issuePrice,
		holders:     make(map[object.Id]int64),
	}
}

// Price returns the current price.
func (s *Stock) Price() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price
}

// SetPrice overwrites the current price. Called only by the owning
// Exchange's coordinator.
func (s *Stock) SetPrice(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = p
}

// MarketCap returns current_price * total_shares.
func (s *Stock) MarketCap() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price * float64(s.TotalShares)
}

// HolderQuantity returns how many shares traderId currently holds.
func (s *Stock) HolderQuantity(traderId object.Id) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[traderId]
}

// ApplyTrade adjusts traderId's holding by deltaQty (positive for buy,
// negative for sell) at the given price. Rejects with
// InsufficientShares if a sell would make the holder negative, and
// OversubscribedShares if a buy would push cumulative holdings past
// TotalShares. The trade is applied atomically or not at all.
func (s *Stock) ApplyTrade(traderId object.Id, deltaQty int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.holders[traderId]
	next := current + deltaQty
	if next < 0 {
		return marketerr.Withf(marketerr.InsufficientShares, "trader %d holds %d shares of %s, cannot sell %d", traderId, current, s.Symbol, -deltaQty)
	}

	if deltaQty > 0 {
		total := s.totalHeldLocked() + deltaQty
		if total > s.TotalShares {
			return marketerr.Withf(marketerr.OversubscribedShares, "trade would push total holdings of %s to %d, exceeding %d shares outstanding", s.Symbol, total, s.TotalShares)
		}
	}

	if next == 0 {
		delete(s.holders, traderId)
	} else {
		s.holders[traderId] = next
	}
	return nil
}

func (s *Stock) totalHeldLocked() int64 {
	var sum int64
	for _, qty := range s.holders {
		sum += qty
	}
	return sum
}

// BeginPlay is a no-op; Stock has no setup work of its own.
func (s *Stock) BeginPlay() error { return nil }

// Tick is a no-op; the owning Exchange drives price changes directly.
func (s *Stock) Tick(deltaSeconds float64) error { return nil }

// EndPlay is a no-op; Stock holds no external resources to release.
func (s *Stock) EndPlay() error { return nil }
