package store

import (
	"testing"
	"time"

	"github.com/ndrandal/marketsim/internal/instance"
)

func TestToExportDocCopiesFields(t *testing.T) {
	exp := instance.Export{
		Details: instance.Details{
			Summary: instance.Summary{
				Id:          "inst-1",
				TemplateId:  "T1",
				Name:        "sandbox",
				Status:      instance.StatusActive,
				CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				StockCount:  1,
				TraderCount: 1,
			},
			Acceleration:  2.5,
			SimulatedTime: time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
			ActualFPS:     29.8,
			Stocks: []instance.StockSnapshot{
				{Symbol: "AAA", Name: "Alpha", Category: "tech", Price: 101.5, MarketCap: 1_000_000},
			},
			Traders: []instance.TraderSnapshot{
				{
					Name:        "trader-1",
					RiskProfile: "conservative",
					Style:       "momentum",
					Capital:     5000,
					Holdings: map[string]instance.HoldingSnapshot{
						"AAA": {Quantity: 10, AverageCost: 100},
					},
				},
			},
		},
		GeneratedAt: time.Date(2026, 1, 1, 1, 0, 1, 0, time.UTC),
	}

	doc := toExportDoc(exp)
	if doc.InstanceId != exp.Id {
		t.Fatalf("InstanceId = %q, want %q", doc.InstanceId, exp.Id)
	}
	if len(doc.Stocks) != 1 || doc.Stocks[0].Symbol != "AAA" {
		t.Fatalf("stocks = %+v", doc.Stocks)
	}
	if len(doc.Traders) != 1 || len(doc.Traders[0].Holdings) != 1 {
		t.Fatalf("traders = %+v", doc.Traders)
	}
	if doc.Traders[0].Holdings[0].Symbol != "AAA" || doc.Traders[0].Holdings[0].Quantity != 10 {
		t.Fatalf("holding = %+v", doc.Traders[0].Holdings[0])
	}
}
