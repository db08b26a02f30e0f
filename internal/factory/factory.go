// Package factory implements the Instance Factory: a worker-pool
// pipeline that reads a template, materializes an Exchange with its
// stocks and traders, wires them into a fresh Lifecycle Manager, and
// reports staged progress. Grounded on cmd/feedsim/main.go's pattern of
// one goroutine per unit of work reading off a shared pool, here
// generalized from "one goroutine per symbol, unbounded" to "one
// goroutine per creation request, bounded by a golang.org/x/sync/errgroup
// limited group" the way the teacher's other domain dependency
// (golang.org/x/sync) is meant to be used for worker-pool fan-out.
package factory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ndrandal/marketsim/internal/lifecycle"
	"github.com/ndrandal/marketsim/internal/market"
	"github.com/ndrandal/marketsim/internal/marketerr"
	"github.com/ndrandal/marketsim/internal/object"
	"github.com/ndrandal/marketsim/internal/pushbus"
	"github.com/ndrandal/marketsim/internal/series"
	"github.com/ndrandal/marketsim/internal/template"
)

const (
	DefaultReadingTemplatesTimeout = 30 * time.Second
	DefaultCreatingObjectsTimeout  = 120 * time.Second
)

// BuildResult is everything a successful creation produced: a fully
// wired, not-yet-started instance. The caller (Instance Controller)
// starts the lifecycle manager and registers the result under an
// instance id of its own choosing.
type BuildResult struct {
	TemplateId string
	Name       string
	LifecycleMgr *lifecycle.Manager
	Exchange     *market.Exchange
	Traders      []*market.AITrader
	SeriesMgr    *series.Manager
	Bus          *pushbus.Bus
}

// TradeEvent is published to the push bus whenever a trader's buy or
// sell actually executes against the exchange's stocks.
type TradeEvent struct {
	Symbol     string
	Side       byte
	Quantity   int64
	Price      float64
	TraderName string
	OccurredAt time.Time
}

// Options configures stage timeouts and the shared worker pool size.
type Options struct {
	PoolSize                int
	ReadingTemplatesTimeout time.Duration
	CreatingObjectsTimeout  time.Duration
	TickFPS                 int
	ErrorThreshold          int
	PushBufferSize          int
	RNGSeed                 int64
	RetentionBuckets        int
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = 4
	}
	if o.ReadingTemplatesTimeout <= 0 {
		o.ReadingTemplatesTimeout = DefaultReadingTemplatesTimeout
	}
	if o.CreatingObjectsTimeout <= 0 {
		o.CreatingObjectsTimeout = DefaultCreatingObjectsTimeout
	}
	if o.TickFPS <= 0 {
		o.TickFPS = 30
	}
	if o.ErrorThreshold <= 0 {
		o.ErrorThreshold = 3
	}
	return o
}

// Factory runs creation requests on a bounded worker pool.
type Factory struct {
	templates   template.Store
	progress    *ProgressStore
	progressBus *pushbus.Bus
	opts        Options

	group *errgroup.Group

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	// OnComplete is invoked once per successful request with its built
	// result; the Instance Controller uses this to register the new
	// instance. OnComplete must not block.
	OnComplete func(requestId string, result *BuildResult)
}

// New creates a Factory reading templates from store, running stages on
// a pool sized opts.PoolSize.
func New(store template.Store, opts Options) *Factory {
	opts = opts.withDefaults()
	g := &errgroup.Group{}
	g.SetLimit(opts.PoolSize)
	progressBus := pushbus.New(opts.PushBufferSize)
	progressBus.OnLaggingSubscriber = func(e *pushbus.LaggingSubscriberError) {
		merr := marketerr.Withf(marketerr.LaggingSubscriber, "progress subscriber %d dropped: backlog overflow", e.SubscriberId)
		log.Printf("factory: %v", merr)
	}
	return &Factory{
		templates:   store,
		progress:    NewProgressStore(),
		progressBus: progressBus,
		opts:        opts,
		group:       g,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Progress returns the store backing polled progress records.
func (f *Factory) Progress() *ProgressStore {
	return f.progress
}

// ProgressBus returns the bus every progress record is also published
// to (Key is the request id), for a transport-level client that wants
// to stream progress rather than poll it.
func (f *Factory) ProgressBus() *pushbus.Bus {
	return f.progressBus
}

// publishProgress records rec and fans it out to ProgressBus subscribers.
func (f *Factory) publishProgress(rec ProgressRecord) {
	f.progress.Set(rec)
	f.progressBus.Publish(pushbus.Event{Topic: pushbus.TopicProgress, Key: rec.RequestId, Payload: rec})
}

// Submit enqueues a creation request and returns its request id
// immediately; the pipeline itself runs asynchronously on the worker
// pool.
func (f *Factory) Submit(templateId, name string) (string, error) {
	requestId := uuid.NewString()
	now := time.Now()
	f.publishProgress(ProgressRecord{
		RequestId:  requestId,
		Stage:      StageInitializing,
		Percentage: 0,
		Message:    "validating template and reserving instance slot",
		StartedAt:  now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.cancels[requestId] = cancel
	f.mu.Unlock()

	f.group.Go(func() error {
		defer func() {
			f.mu.Lock()
			delete(f.cancels, requestId)
			f.mu.Unlock()
			cancel()
		}()
		defer f.recoverWorker(requestId)
		f.run(ctx, requestId, templateId, name)
		return nil
	})

	return requestId, nil
}

// Cancel requests that an in-flight creation stop at its next stage
// boundary. A request in Finalizing or later cannot be cancelled.
func (f *Factory) Cancel(requestId string) error {
	f.mu.Lock()
	cancel, ok := f.cancels[requestId]
	f.mu.Unlock()
	if !ok {
		return marketerr.Withf(marketerr.RequestNotFound, "request %q not in flight", requestId)
	}
	cancel()
	return nil
}

// recoverWorker catches a panic escaping a worker goroutine's run and
// surfaces it as a terminal WorkerCrashed progress record instead of
// letting it take down the shared errgroup.
func (f *Factory) recoverWorker(requestId string) {
	r := recover()
	if r == nil {
		return
	}
	now := time.Now()
	msg := marketerr.Withf(marketerr.WorkerCrashed, "worker panic: %v", r).Error()
	f.publishProgress(ProgressRecord{
		RequestId:   requestId,
		Stage:       StageError,
		Percentage:  100,
		Message:     "worker crashed",
		StartedAt:   now,
		CompletedAt: &now,
		Error:       &msg,
	})
}

func (f *Factory) run(ctx context.Context, requestId, templateId, name string) {
	var registered []cleanupFunc

	fail := func(stage Stage, err error) {
		for i := len(registered) - 1; i >= 0; i-- {
			registered[i]()
		}
		now := time.Now()
		msg := err.Error()
		f.publishProgress(ProgressRecord{
			RequestId:   requestId,
			Stage:       StageError,
			Percentage:  100,
			Message:     fmt.Sprintf("failed in %s", stage),
			StartedAt:   now,
			CompletedAt: &now,
			Error:       &msg,
		})
	}

	if cancelled(ctx) {
		fail(StageInitializing, marketerr.New(marketerr.Cancelled, "cancelled during Initializing"))
		return
	}

	// ReadingTemplates
	f.setProgress(requestId, StageReadingTemplates, 10, "reading template", nil)
	readCtx, readCancel := context.WithTimeout(ctx, f.opts.ReadingTemplatesTimeout)
	tpl, err := f.readTemplate(readCtx, templateId)
	readCancel()
	if err != nil {
		fail(StageReadingTemplates, err)
		return
	}
	if cancelled(ctx) {
		fail(StageReadingTemplates, marketerr.New(marketerr.Cancelled, "cancelled during ReadingTemplates"))
		return
	}
	f.setProgress(requestId, StageReadingTemplates, 40, "template materialized", nil)

	// CreatingObjects
	f.setProgress(requestId, StageCreatingObjects, 50, "constructing exchange, stocks, traders", nil)
	createCtx, createCancel := context.WithTimeout(ctx, f.opts.CreatingObjectsTimeout)
	result, cleanup, err := f.createObjects(createCtx, tpl, name)
	createCancel()
	if cleanup != nil {
		registered = append(registered, cleanup)
	}
	if err != nil {
		fail(StageCreatingObjects, err)
		return
	}
	if cancelled(ctx) {
		fail(StageCreatingObjects, marketerr.New(marketerr.Cancelled, "cancelled during CreatingObjects"))
		return
	}
	f.setProgress(requestId, StageCreatingObjects, 90, "objects registered", nil)

	// Finalizing (non-cancellable)
	f.setProgress(requestId, StageFinalizing, 95, "starting exchange", nil)
	if err := result.LifecycleMgr.Start(); err != nil {
		fail(StageFinalizing, err)
		return
	}

	now := time.Now()
	f.publishProgress(ProgressRecord{
		RequestId:   requestId,
		Stage:       StageComplete,
		Percentage:  100,
		Message:     "instance active",
		StartedAt:   now,
		CompletedAt: &now,
	})

	if f.OnComplete != nil {
		f.OnComplete(requestId, result)
	}
}

type cleanupFunc func()

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (f *Factory) setProgress(requestId string, stage Stage, pct int, msg string, details map[string]any) {
	existing, _ := f.progress.Get(requestId)
	f.publishProgress(ProgressRecord{
		RequestId:  requestId,
		Stage:      stage,
		Percentage: pct,
		Message:    msg,
		Details:    details,
		StartedAt:  existing.StartedAt,
	})
}

func (f *Factory) readTemplate(ctx context.Context, templateId string) (template.Template, error) {
	type result struct {
		tpl template.Template
		err error
	}
	done := make(chan result, 1)
	go func() {
		tpl, err := f.templates.Get(templateId)
		done <- result{tpl, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return template.Template{}, marketerr.Withf(marketerr.TemplateNotFound, "%v", r.err)
		}
		return r.tpl, nil
	case <-ctx.Done():
		return template.Template{}, marketerr.New(marketerr.StageTimeout, "reading template timed out")
	}
}

// createObjects builds the Exchange/Stocks/Traders for tpl via a fresh
// Lifecycle Manager and returns a cleanup that destroys everything
// registered so far, for the rollback path.
func (f *Factory) createObjects(ctx context.Context, tpl template.Template, name string) (*BuildResult, cleanupFunc, error) {
	bus := pushbus.New(f.opts.PushBufferSize)
	bus.OnLaggingSubscriber = func(e *pushbus.LaggingSubscriberError) {
		merr := marketerr.Withf(marketerr.LaggingSubscriber, "subscriber %d dropped: backlog overflow", e.SubscriberId)
		log.Printf("factory: %v", merr)
	}
	seriesMgr := series.New(func(d series.Delta) {
		bus.Publish(pushbus.Event{Topic: pushbus.TopicKline, Key: d.Key + ":" + string(d.Granularity), Payload: d})
	})
	if f.opts.RetentionBuckets > 0 {
		seriesMgr.SetRetention(f.opts.RetentionBuckets)
	}

	mgr := lifecycle.New(f.opts.TickFPS, f.opts.ErrorThreshold)

	stocks := make(map[string]*market.Stock, len(tpl.Stocks))
	for _, spec := range tpl.Stocks {
		stocks[spec.Symbol] = market.NewStock(spec.Symbol, spec.Name, spec.Category, spec.IssuePrice, spec.TotalShares, spec.TickSize, spec.Volatility, spec.DriftPerDay)
	}

	rng := market.NewRNG(f.opts.RNGSeed)
	sampleInterval := tpl.SampleInterval
	if sampleInterval <= 0 {
		sampleInterval = 1
	}
	keyPrefix := fmt.Sprintf("kline:%s:", tpl.Id)
	exchange := market.NewExchange(tpl.Id, name, tpl.Description, stocks, rng, seriesMgr, sampleInterval)
	exchange.SeriesKeyPrefix = keyPrefix

	for symbol := range stocks {
		if err := seriesMgr.CreateSeries(keyPrefix+symbol, series.DataTypePrice, []string{"price", "volume"}); err != nil {
			return nil, nil, err
		}
	}

	mgr.RegisterFactory("exchange", func(args any) (object.Hooks, error) {
		return exchange, nil
	})

	var registeredIds []object.Id
	exchangeId, err := mgr.Create("exchange", nil)
	if cancelled(ctx) {
		return nil, rollbackFunc(mgr, registeredIds), marketerr.New(marketerr.Cancelled, "cancelled during CreatingObjects")
	}
	if err != nil {
		return nil, rollbackFunc(mgr, registeredIds), err
	}
	exchange.Id = exchangeId
	registeredIds = append(registeredIds, exchangeId)

	for _, stock := range stocks {
		s := stock
		mgr.RegisterFactory("stock:"+s.Symbol, func(args any) (object.Hooks, error) {
			return s, nil
		})
		id, err := mgr.Create("stock:"+s.Symbol, nil)
		if err != nil {
			return nil, rollbackFunc(mgr, registeredIds), err
		}
		s.Id = id
		registeredIds = append(registeredIds, id)
	}

	traders := make([]*market.AITrader, 0, len(tpl.Traders))
	for _, spec := range tpl.Traders {
		trader := market.NewAITrader(spec.Name, spec.RiskProfile, spec.Style, spec.MaxPositions, spec.InitialCapital, stocks, rng)
		traders = append(traders, trader)
		tr := trader
		tr.SetTradeSink(func(symbol string, side byte, qty int64, price float64) {
			bus.Publish(pushbus.Event{
				Topic: pushbus.TopicTrade,
				Key:   symbol,
				Payload: TradeEvent{
					Symbol:      symbol,
					Side:        side,
					Quantity:    qty,
					Price:       price,
					TraderName:  tr.Name,
					OccurredAt:  time.Now(),
				},
			})
		})
		mgr.RegisterFactory("trader:"+spec.Name, func(args any) (object.Hooks, error) {
			return tr, nil
		})
		id, err := mgr.Create("trader:"+spec.Name, nil)
		if err != nil {
			return nil, rollbackFunc(mgr, registeredIds), err
		}
		tr.Id = id
		registeredIds = append(registeredIds, id)
	}

	applyAllocation(tpl, stocks, traders, rng)

	result := &BuildResult{
		TemplateId:   tpl.Id,
		Name:         name,
		LifecycleMgr: mgr,
		Exchange:     exchange,
		Traders:      traders,
		SeriesMgr:    seriesMgr,
		Bus:          bus,
	}
	return result, rollbackFunc(mgr, registeredIds), nil
}

// rollbackFunc destroys every object registered so far, for the failure
// path: the manager's own tick loop runs EndPlay and compaction, so
// rollback only needs to request Destroying on each id still live.
func rollbackFunc(mgr *lifecycle.Manager, ids []object.Id) cleanupFunc {
	return func() {
		for _, id := range ids {
			_ = mgr.Destroy(id)
		}
	}
}

func applyAllocation(tpl template.Template, stocks map[string]*market.Stock, traders []*market.AITrader, rng *market.RNG) {
	refs := make([]market.TraderRef, len(traders))
	for i, tr := range traders {
		refs[i] = market.TraderRef{Id: int(tr.Id), RiskProfile: tr.RiskProfile}
	}
	byId := make(map[int]*market.AITrader, len(traders))
	for _, tr := range traders {
		byId[int(tr.Id)] = tr
	}

	for _, spec := range tpl.Stocks {
		stock := stocks[spec.Symbol]
		qtys := market.Allocate(tpl.Allocation, market.StockRef{Symbol: spec.Symbol, TotalShares: spec.TotalShares, Volatility: spec.Volatility}, refs, rng)
		for traderId, qty := range qtys {
			if qty <= 0 {
				continue
			}
			stock.ApplyTrade(byId[traderId].Id, qty, stock.Price())
		}
	}
}
