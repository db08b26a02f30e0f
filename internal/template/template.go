// Package template provides the read-only recipe the Instance Factory
// reads during its ReadingTemplates stage: which stocks and traders to
// materialize, and which allocation algorithm to run. The real template
// store is external (out of scope); this package supplies the
// provider interface the factory depends on plus an in-memory default
// catalog so an instance can actually be created end to end. Grounded
// on internal/symbol/symbol.go's AllSymbols() fixture table,
// generalized from a flat symbol list into named templates bundling
// stocks, traders, and an allocation choice.
package template

import (
	"fmt"
	"sync"

	"github.com/ndrandal/marketsim/internal/market"
)

// StockSpec describes one stock a template materializes. DriftPerDay
// sets the random walk's expected daily log-return, configured
// per template rather than fixed globally.
type StockSpec struct {
	Symbol      string
	Name        string
	Category    market.Category
	IssuePrice  float64
	TotalShares int64
	TickSize    float64
	Volatility  float64
	DriftPerDay float64
}

// TraderSpec describes one trader a template materializes.
type TraderSpec struct {
	Name           string
	RiskProfile    market.RiskProfile
	Style          market.TradingStyle
	MaxPositions   int
	InitialCapital float64
}

// Template is the full recipe for one market instance.
type Template struct {
	Id          string
	Name        string
	Description string
	Stocks      []StockSpec
	Traders     []TraderSpec
	Allocation  market.AllocationAlgorithm
	SampleInterval int // frames between raw point emission, default 1
}

// Store is the provider interface the Instance Factory depends on. The
// real implementation lives outside this module (an external template
// service); Provider below is the in-memory stand-in used when no
// external store is configured.
type Store interface {
	Get(templateId string) (Template, error)
}

// Provider is an in-memory Store seeded with a small default catalog,
// sufficient to create a runnable instance without any external
// dependency.
type Provider struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewProvider creates a Provider pre-populated with DefaultTemplates.
func NewProvider() *Provider {
	p := &Provider{templates: make(map[string]Template)}
	for _, t := range DefaultTemplates() {
		p.templates[t.Id] = t
	}
	return p
}

// Register adds or replaces a template.
func (p *Provider) Register(t Template) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.templates[t.Id] = t
}

// Get returns the template for id, or an error if it is not known.
func (p *Provider) Get(templateId string) (Template, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.templates[templateId]
	if !ok {
		return Template{}, fmt.Errorf("template: %q not found", templateId)
	}
	return t, nil
}

// DefaultTemplates returns the fixture catalog: a handful of sector
// mixes and trader rosters sized for common demo/testing scenarios.
func DefaultTemplates() []Template {
	return []Template{
		{
			Id:          "T1",
			Name:        "Balanced Starter Market",
			Description: "5 stocks across tech/finance/healthcare/energy/ETF, 10 traders of mixed risk profile",
			Stocks: []StockSpec{
				{"NEXO", "Nexo Dynamics Inc", market.CategoryTech, 185.00, 1_000_000, 0.01, 1.4, 0.0004},
				{"LEDG", "Ledger Capital Group", market.CategoryFinance, 78.50, 1_000_000, 0.01, 0.8, 0.0001},
				{"HELX", "Helix Biomedical Inc", market.CategoryHealthcare, 195.00, 1_000_000, 0.01, 0.5, 0.0002},
				{"VOLT", "Volt Energy Corp", market.CategoryEnergy, 98.00, 1_000_000, 0.01, 1.1, -0.0001},
				{"MKTS", "Markets Broad ETF", market.CategoryETF, 350.00, 1_000_000, 0.01, 0.4, 0.0001},
			},
			Traders:        defaultTraderRoster(10),
			Allocation:     market.AllocationEqual,
			SampleInterval: 1,
		},
		{
			Id:          "T2-conservative",
			Name:        "Conservative Two-Stock Sandbox",
			Description: "Scenario-3 style fixture: one conservative trader, two stocks",
			Stocks: []StockSpec{
				{"AAA", "Alpha Holdings", market.CategoryTech, 10, 100_000, 0.01, 1.0, 0.0},
				{"BBB", "Beta Industries", market.CategoryFinance, 100, 100_000, 0.01, 0.5, 0.0},
			},
			Traders: []TraderSpec{
				{Name: "conservative-1", RiskProfile: market.RiskConservative, Style: market.StyleSwing, MaxPositions: 2, InitialCapital: 10000},
			},
			Allocation:     market.AllocationEqual,
			SampleInterval: 1,
		},
	}
}

func defaultTraderRoster(n int) []TraderSpec {
	profiles := []market.RiskProfile{market.RiskConservative, market.RiskModerate, market.RiskAggressive}
	styles := []market.TradingStyle{market.StyleDay, market.StyleSwing, market.StylePosition}
	out := make([]TraderSpec, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, TraderSpec{
			Name:           fmt.Sprintf("trader-%d", i+1),
			RiskProfile:    profiles[i%len(profiles)],
			Style:          styles[i%len(styles)],
			MaxPositions:   5,
			InitialCapital: 50000,
		})
	}
	return out
}
