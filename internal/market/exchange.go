package market

import (
	"math"
	"sync"
	"time"

	"github.com/ndrandal/marketsim/internal/clock"
	"github.com/ndrandal/marketsim/internal/object"
)

const (
	baseDailyVol = 0.02
	sectorBlend  = 0.60
	ticksPerDay  = 86400.0
)

// SeriesSink is the subset of the time-series manager an Exchange needs
// to emit raw points, kept as an interface here so internal/market
// never imports internal/series (the series manager instead depends on
// this package's Stock/Category types, not the other way around).
type SeriesSink interface {
	AddPoint(seriesKey string, t time.Time, price, volume float64) error
}

// Exchange is the coordinator for one market instance: it owns a
// simulated clock, drives every Stock's price via a GBM random walk
// with category-correlated shocks, and emits raw points to the
// time-series manager. Adapted from the teacher's
// internal/engine.MarketEngine, generalized from a flat
// locate-code->price map into named Stock entities with holder
// ledgers, and from "tick one symbol" to "tick every stock for this
// instance each frame".
type Exchange struct {
	mu sync.RWMutex

	Id             object.Id
	TemplateId     string
	Name           string
	Description    string
	CreatedAt      time.Time
	SeriesKeyPrefix string

	clk          *clock.Clock
	acceleration float64

	stocks       map[string]*Stock
	categoryShocks map[Category]float64
	rng          *RNG
	sink         SeriesSink

	sampleInterval int // emit a point every N frames; 1 = every frame
	frameCount     int
}

// NewExchange creates an Exchange over the given stocks, sharing rng
// with the instance's traders so category shocks and trader decisions
// draw from the same reproducible stream.
func NewExchange(templateId, name, description string, stocks map[string]*Stock, rng *RNG, sink SeriesSink, sampleInterval int) *Exchange {
	if sampleInterval < 1 {
		sampleInterval = 1
	}
	return &Exchange{
		TemplateId:     templateId,
		Name:           name,
		Description:    description,
		stocks:         stocks,
		categoryShocks: make(map[Category]float64),
		rng:            rng,
		sink:           sink,
		acceleration:   1.0,
		sampleInterval: sampleInterval,
	}
}

// Clock returns the exchange's simulated clock. Nil until BeginPlay
// has run.
func (e *Exchange) Clock() *clock.Clock {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clk
}

// Acceleration returns the exchange's current acceleration factor.
func (e *Exchange) Acceleration() float64 {
	if c := e.Clock(); c != nil {
		return c.Acceleration()
	}
	return e.acceleration
}

// SetAcceleration forwards to the underlying clock.
func (e *Exchange) SetAcceleration(factor float64, wallNow time.Time) error {
	if c := e.Clock(); c != nil {
		return c.SetAcceleration(factor, wallNow)
	}
	return nil
}

// Stocks returns the live symbol->Stock map this exchange coordinates.
func (e *Exchange) Stocks() map[string]*Stock {
	return e.stocks
}

// BeginPlay anchors the simulated clock at the wall-clock time the
// exchange first becomes active.
func (e *Exchange) BeginPlay() error {
	now := time.Now()
	e.mu.Lock()
	e.clk = clock.New(now)
	e.CreatedAt = now
	e.mu.Unlock()
	return nil
}

// Tick reads the simulated clock and walks every stock's price one GBM step,
// blending a per-category correlated shock with an idiosyncratic one,
// then emits a raw price+volume point per symbol to the time-series
// manager every sampleInterval frames.
func (e *Exchange) Tick(deltaSeconds float64) error {
	e.mu.Lock()
	e.frameCount++
	shouldEmit := e.frameCount%e.sampleInterval == 0
	e.mu.Unlock()

	e.generateCategoryShocks()

	now := time.Now()
	simNow := e.Clock().Now(now)

	for symbol, stock := range e.stocks {
		e.walkPrice(stock)
		if shouldEmit && e.sink != nil {
			key := e.SeriesKeyPrefix + symbol
			e.sink.AddPoint(key, simNow, stock.Price(), 0)
		}
	}
	return nil
}

// EndPlay releases no resources of its own; subscriber detachment is
// the Push Bus's responsibility on instance destruction.
func (e *Exchange) EndPlay() error { return nil }

func (e *Exchange) generateCategoryShocks() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cat := range Categories() {
		e.categoryShocks[cat] = e.rng.Gaussian()
	}
}

func (e *Exchange) walkPrice(stock *Stock) {
	e.mu.RLock()
	categoryShock := e.categoryShocks[stock.Category]
	e.mu.RUnlock()

	price := stock.Price()
	tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * stock.Volatility
	tickDrift := stock.DriftPerDay / ticksPerDay
	idioShock := e.rng.Gaussian()
	z := sectorBlend*categoryShock + (1-sectorBlend)*idioShock

	logReturn := tickDrift + tickVol*z
	price *= math.Exp(logReturn)

	if stock.TickSize > 0 {
		price = math.Round(price/stock.TickSize) * stock.TickSize
		if price < stock.TickSize {
			price = stock.TickSize
		}
	}
	stock.SetPrice(price)
}
