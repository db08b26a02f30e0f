package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ndrandal/marketsim/internal/instance"
)

// ExportStore persists durable instance.Export snapshots, one document
// per instance id, upserted on every save.
type ExportStore struct {
	store *Store
}

// NewExportStore wraps store for export persistence.
func NewExportStore(store *Store) *ExportStore {
	return &ExportStore{store: store}
}

type stockDoc struct {
	Symbol    string  `bson:"symbol"`
	Name      string  `bson:"name"`
	Category  string  `bson:"category"`
	Price     float64 `bson:"price"`
	MarketCap float64 `bson:"market_cap"`
}

type holdingDoc struct {
	Symbol      string  `bson:"symbol"`
	Quantity    int64   `bson:"quantity"`
	AverageCost float64 `bson:"average_cost"`
}

type traderDoc struct {
	Name        string       `bson:"name"`
	RiskProfile string       `bson:"risk_profile"`
	Style       string       `bson:"style"`
	Capital     float64      `bson:"capital"`
	Holdings    []holdingDoc `bson:"holdings"`
}

type exportDoc struct {
	InstanceId    string      `bson:"instance_id"`
	TemplateId    string      `bson:"template_id"`
	Name          string      `bson:"name"`
	Status        string      `bson:"status"`
	CreatedAt     time.Time   `bson:"created_at"`
	Acceleration  float64     `bson:"acceleration"`
	SimulatedTime time.Time   `bson:"simulated_time"`
	ActualFPS     float64     `bson:"actual_fps"`
	Stocks        []stockDoc  `bson:"stocks"`
	Traders       []traderDoc `bson:"traders"`
	GeneratedAt   time.Time   `bson:"generated_at"`
}

func toExportDoc(exp instance.Export) exportDoc {
	stocks := make([]stockDoc, 0, len(exp.Stocks))
	for _, s := range exp.Stocks {
		stocks = append(stocks, stockDoc{
			Symbol:    s.Symbol,
			Name:      s.Name,
			Category:  s.Category,
			Price:     s.Price,
			MarketCap: s.MarketCap,
		})
	}

	traders := make([]traderDoc, 0, len(exp.Traders))
	for _, tr := range exp.Traders {
		holdings := make([]holdingDoc, 0, len(tr.Holdings))
		for symbol, h := range tr.Holdings {
			holdings = append(holdings, holdingDoc{Symbol: symbol, Quantity: h.Quantity, AverageCost: h.AverageCost})
		}
		traders = append(traders, traderDoc{
			Name:        tr.Name,
			RiskProfile: tr.RiskProfile,
			Style:       tr.Style,
			Capital:     tr.Capital,
			Holdings:    holdings,
		})
	}

	return exportDoc{
		InstanceId:    exp.Id,
		TemplateId:    exp.TemplateId,
		Name:          exp.Name,
		Status:        string(exp.Status),
		CreatedAt:     exp.CreatedAt,
		Acceleration:  exp.Acceleration,
		SimulatedTime: exp.SimulatedTime,
		ActualFPS:     exp.ActualFPS,
		Stocks:        stocks,
		Traders:       traders,
		GeneratedAt:   exp.GeneratedAt,
	}
}

// Save upserts exp keyed by its instance id.
func (s *ExportStore) Save(ctx context.Context, exp instance.Export) error {
	doc := toExportDoc(exp)
	_, err := s.store.db.Collection("exports").UpdateOne(ctx,
		bson.M{"instance_id": doc.InstanceId},
		bson.M{"$set": doc},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save export %s: %w", doc.InstanceId, err)
	}
	return nil
}

// Get returns the most recently saved export for instanceId.
func (s *ExportStore) Get(ctx context.Context, instanceId string) (instance.Export, bool, error) {
	var doc exportDoc
	err := s.store.db.Collection("exports").FindOne(ctx, bson.M{"instance_id": instanceId}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return instance.Export{}, false, nil
		}
		return instance.Export{}, false, fmt.Errorf("get export %s: %w", instanceId, err)
	}

	stocks := make([]instance.StockSnapshot, 0, len(doc.Stocks))
	for _, s := range doc.Stocks {
		stocks = append(stocks, instance.StockSnapshot{
			Symbol:    s.Symbol,
			Name:      s.Name,
			Category:  s.Category,
			Price:     s.Price,
			MarketCap: s.MarketCap,
		})
	}

	traders := make([]instance.TraderSnapshot, 0, len(doc.Traders))
	for _, tr := range doc.Traders {
		holdings := make(map[string]instance.HoldingSnapshot, len(tr.Holdings))
		for _, h := range tr.Holdings {
			holdings[h.Symbol] = instance.HoldingSnapshot{Quantity: h.Quantity, AverageCost: h.AverageCost}
		}
		traders = append(traders, instance.TraderSnapshot{
			Name:        tr.Name,
			RiskProfile: tr.RiskProfile,
			Style:       tr.Style,
			Capital:     tr.Capital,
			Holdings:    holdings,
		})
	}

	return instance.Export{
		Details: instance.Details{
			Summary: instance.Summary{
				Id:          doc.InstanceId,
				TemplateId:  doc.TemplateId,
				Name:        doc.Name,
				Status:      instance.Status(doc.Status),
				CreatedAt:   doc.CreatedAt,
				StockCount:  len(stocks),
				TraderCount: len(traders),
			},
			Acceleration:  doc.Acceleration,
			SimulatedTime: doc.SimulatedTime,
			ActualFPS:     doc.ActualFPS,
			Stocks:        stocks,
			Traders:       traders,
		},
		GeneratedAt: doc.GeneratedAt,
	}, true, nil
}
