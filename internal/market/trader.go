package market

import (
	"sync"

	"github.com/ndrandal/marketsim/internal/object"
)

// RiskProfile selects how aggressively a trader enters and exits
// positions.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// TradingStyle scales position size and holding-period sensitivity.
type TradingStyle string

const (
	StyleDay      TradingStyle = "day"
	StyleSwing    TradingStyle = "swing"
	StylePosition TradingStyle = "position"
)

// Holding is one position a trader carries in a single stock.
type Holding struct {
	Quantity    int64
	AverageCost float64
}

// AITrader is an autonomous market participant. Each tick it consults
// its risk profile's decision function against current stock prices
// and may submit at most one buy or sell per symbol.
type AITrader struct {
	mu sync.Mutex

	Id            object.Id
	Name          string
	RiskProfile   RiskProfile
	Style         TradingStyle
	MaxPositions  int
	InitialCapital float64
	StrategyParams map[string]any

	capital  float64
	holdings map[string]Holding

	stocks map[string]*Stock
	rng    *RNG

	onTrade func(symbol string, side byte, qty int64, price float64)
}

// SetTradeSink installs a callback invoked after every trade this
// trader successfully executes via tryBuy/trySell (side 'B' or 'S').
// Not called for the initial allocation seeding, which bypasses the
// decision loop entirely.
func (a *AITrader) SetTradeSink(f func(symbol string, side byte, qty int64, price float64)) {
	a.mu.Lock()
	a.onTrade = f
	a.mu.Unlock()
}

// NewAITrader creates a trader with the given capital and no holdings.
// stocks is the exchange's live symbol->Stock map; traders never hold
// their own copy of price state, only a reference into the exchange's.
func NewAITrader(name string, profile RiskProfile, style TradingStyle, maxPositions int, capital float64, stocks map[string]*Stock, rng *RNG) *AITrader {
	return &AITrader{
		Name:           name,
		RiskProfile:    profile,
		Style:          style,
		MaxPositions:   maxPositions,
		InitialCapital: capital,
		StrategyParams: make(map[string]any),
		capital:        capital,
		holdings:       make(map[string]Holding),
		stocks:         stocks,
		rng:            rng,
	}
}

// Capital returns current cash.
func (a *AITrader) Capital() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capital
}

// Holdings returns a copy of the trader's current positions.
func (a *AITrader) Holdings() map[string]Holding {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]Holding, len(a.holdings))
	for k, v := range a.holdings {
		out[k] = v
	}
	return out
}

// intent is the decision a strategy reaches for one symbol.
type intent int

const (
	intentHold intent = iota
	intentBuy
	intentSell
)

// BeginPlay has no setup work.
func (a *AITrader) BeginPlay() error { return nil }

// Tick evaluates every symbol in ascending order and may submit one buy
// or sell against the exchange's stocks. Invariants (capital >= 0,
// holding count <= MaxPositions, each holding qty > 0) are enforced by
// silently skipping a trade that would violate them, never by erroring
// the tick.
func (a *AITrader) Tick(deltaSeconds float64) error {
	symbols := a.orderedSymbols()
	for _, sym := range symbols {
		stock := a.stocks[sym]
		price := stock.Price()
		a.evaluateOne(sym, stock, price)
	}
	return nil
}

// EndPlay has no teardown work.
func (a *AITrader) EndPlay() error { return nil }

func (a *AITrader) orderedSymbols() []string {
	syms := make([]string, 0, len(a.stocks))
	for s := range a.stocks {
		syms = append(syms, s)
	}
	// deterministic order keeps per-frame trader behavior reproducible
	// given a fixed RNG seed
	for i := 1; i < len(syms); i++ {
		for j := i; j > 0 && syms[j] < syms[j-1]; j-- {
			syms[j], syms[j-1] = syms[j-1], syms[j]
		}
	}
	return syms
}

func (a *AITrader) evaluateOne(symbol string, stock *Stock, price float64) {
	a.mu.Lock()
	holding, has := a.holdings[symbol]
	cash := a.capital
	positions := len(a.holdings)
	a.mu.Unlock()

	action := a.decide(symbol, price, holding, has, cash, positions)

	switch action {
	case intentBuy:
		a.tryBuy(symbol, stock, price)
	case intentSell:
		a.trySell(symbol, stock, price, holding)
	}
}

// decide applies the risk-profile decision function. Each profile
// answers: given this trader's current position (if any) in symbol and
// its cash, should it buy, sell, or hold this tick?
func (a *AITrader) decide(symbol string, price float64, holding Holding, has bool, cash float64, positions int) intent {
	switch a.RiskProfile {
	case RiskConservative:
		return a.decideConservative(price, holding, has, cash, positions)
	case RiskAggressive:
		return a.decideAggressive(price, holding, has, cash, positions)
	default:
		return a.decideModerate(price, holding, has, cash, positions)
	}
}

// decideConservative only buys a small starter position when it has
// room under MaxPositions and enough cash, and only sells a holding
// once its price has risen at least 20% above the average cost. It
// never sells at a loss.
func (a *AITrader) decideConservative(price float64, holding Holding, has bool, cash float64, positions int) intent {
	if has {
		if price >= holding.AverageCost*1.20 {
			return intentSell
		}
		return intentHold
	}
	if positions >= a.MaxPositions {
		return intentHold
	}
	budget := cash * 0.10
	if budget < price {
		return intentHold
	}
	return intentBuy
}

// decideModerate buys with more of its available cash and takes profit
// at +10% or cuts a loss at -10%.
func (a *AITrader) decideModerate(price float64, holding Holding, has bool, cash float64, positions int) intent {
	if has {
		if price >= holding.AverageCost*1.10 || price <= holding.AverageCost*0.90 {
			return intentSell
		}
		return intentHold
	}
	if positions >= a.MaxPositions {
		return intentHold
	}
	budget := cash * 0.25
	if budget < price {
		return intentHold
	}
	return intentBuy
}

// decideAggressive trades the largest share of its cash and reacts to
// smaller moves: +5% profit target, -15% stop loss.
func (a *AITrader) decideAggressive(price float64, holding Holding, has bool, cash float64, positions int) intent {
	if has {
		if price >= holding.AverageCost*1.05 || price <= holding.AverageCost*0.85 {
			return intentSell
		}
		return intentHold
	}
	if positions >= a.MaxPositions {
		return intentHold
	}
	budget := cash * 0.40
	if budget < price {
		return intentHold
	}
	return intentBuy
}

func (a *AITrader) styleSizeMultiplier() float64 {
	switch a.Style {
	case StyleDay:
		return 1.5
	case StylePosition:
		return 0.5
	default:
		return 1.0
	}
}

func (a *AITrader) tryBuy(symbol string, stock *Stock, price float64) {
	if price <= 0 {
		return
	}
	a.mu.Lock()
	budgetFrac := 0.10
	switch a.RiskProfile {
	case RiskModerate:
		budgetFrac = 0.25
	case RiskAggressive:
		budgetFrac = 0.40
	}
	budget := a.capital * budgetFrac * a.styleSizeMultiplier()
	qty := int64(budget / price)
	if qty <= 0 {
		a.mu.Unlock()
		return
	}
	cost := float64(qty) * price
	if cost > a.capital {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if err := stock.ApplyTrade(a.Id, qty, price); err != nil {
		return
	}

	a.mu.Lock()
	a.capital -= cost
	h := a.holdings[symbol]
	totalCost := h.AverageCost*float64(h.Quantity) + cost
	h.Quantity += qty
	h.AverageCost = totalCost / float64(h.Quantity)
	a.holdings[symbol] = h
	sink := a.onTrade
	a.mu.Unlock()

	if sink != nil {
		sink(symbol, 'B', qty, price)
	}
}

func (a *AITrader) trySell(symbol string, stock *Stock, price float64, holding Holding) {
	if holding.Quantity <= 0 {
		return
	}
	if err := stock.ApplyTrade(a.Id, -holding.Quantity, price); err != nil {
		return
	}

	a.mu.Lock()
	a.capital += float64(holding.Quantity) * price
	delete(a.holdings, symbol)
	sink := a.onTrade
	a.mu.Unlock()

	if sink != nil {
		sink(symbol, 'S', holding.Quantity, price)
	}
}
