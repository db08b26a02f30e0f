package instance

import "time"

// Summary is the list-view DTO: enough to populate an instance picker
// without walking every stock and trader.
type Summary struct {
	Id         string    `json:"id"`
	TemplateId string    `json:"templateId"`
	Name       string    `json:"name"`
	OwnerId    string    `json:"ownerId"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	StockCount int       `json:"stockCount"`
	TraderCount int      `json:"traderCount"`
}

// StockSnapshot is the read view of one stock at a point in time.
type StockSnapshot struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Price      float64 `json:"price"`
	MarketCap  float64 `json:"marketCap"`
}

// HoldingSnapshot is one position a trader carries in a single symbol.
type HoldingSnapshot struct {
	Quantity    int64   `json:"quantity"`
	AverageCost float64 `json:"averageCost"`
}

// TraderSnapshot is the read view of one trader at a point in time.
type TraderSnapshot struct {
	Name        string                     `json:"name"`
	RiskProfile string                     `json:"riskProfile"`
	Style       string                     `json:"style"`
	Capital     float64                    `json:"capital"`
	Holdings    map[string]HoldingSnapshot `json:"holdings"`
}

// Details is the get-one-instance DTO: full roster plus overview stats.
type Details struct {
	Summary
	Acceleration float64              `json:"acceleration"`
	SimulatedTime time.Time           `json:"simulatedTime"`
	ActualFPS    float64              `json:"actualFps"`
	Stocks       []StockSnapshot      `json:"stocks"`
	Traders      []TraderSnapshot     `json:"traders"`
}

// Export is the durable snapshot the persistence layer (internal/store)
// writes out: the instance's Details plus the time the snapshot was
// generated.
type Export struct {
	Details
	GeneratedAt time.Time `json:"generatedAt"`
}
