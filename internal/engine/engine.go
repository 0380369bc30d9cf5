// Package engine wires the trading components together and drives them
// from the scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coinforge/coinforge/internal/alerts"
	"github.com/coinforge/coinforge/internal/allocator"
	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/executor"
	"github.com/coinforge/coinforge/internal/indicators"
	"github.com/coinforge/coinforge/internal/market"
	"github.com/coinforge/coinforge/internal/metrics"
	"github.com/coinforge/coinforge/internal/position"
	"github.com/coinforge/coinforge/internal/reconcile"
	"github.com/coinforge/coinforge/internal/risk"
	"github.com/coinforge/coinforge/internal/scheduler"
	"github.com/coinforge/coinforge/internal/scoring"
	"github.com/coinforge/coinforge/internal/store"
)

const (
	candleTimeframe = "5m"
	candleLimit     = 200
)

// SentimentProvider supplies optional market-wide sentiment for scoring.
type SentimentProvider func(ctx context.Context) (*scoring.SentimentSnapshot, error)

type dayStats struct {
	pnl    float64
	trades int
	wins   int
	losses int
}

// Engine owns every component and the state shared between jobs.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	market     *market.Adapter
	indicators *indicators.Engine
	scorer     *scoring.Scorer
	allocator  *allocator.Allocator
	exec       *executor.Executor
	tracker    *position.Tracker
	risk       *risk.Engine
	daily      *risk.DailyTracker
	reconciler *reconcile.Reconciler
	store      *store.Store
	alerts     *alerts.Manager
	sched      *scheduler.Scheduler
	metricsSrv *metrics.Server
	sentiment  SentimentProvider

	mu            sync.Mutex
	snapshots     map[string]*indicators.Snapshot
	profiles      map[string]*indicators.VolatilityProfile
	scores        map[string]*scoring.Result
	realizedTotal float64
	day           dayStats
	dayDate       time.Time
}

// New builds the engine from configuration: venue selection, optional
// Redis ticker cache, optional PostgreSQL store, optional NATS alerts.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Engine, error) {
	alertChannels := []alerts.Alerter{alerts.NewLogAlerter(logger)}
	if cfg.NATS.Enabled {
		natsAlerter, err := alerts.NewNATSAlerter(cfg.NATS.URL, "", logger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up NATS alerts: %w", err)
		}
		alertChannels = append(alertChannels, natsAlerter)
	}
	alertMgr := alerts.NewManager(logger, alertChannels...)

	var tradeStore *store.Store
	if cfg.Database.Enabled {
		var err error
		tradeStore, err = store.New(ctx, cfg.Database, config.NewLogger("store"))
		if err != nil {
			return nil, err
		}
		if err := tradeStore.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	live := exchange.NewBinanceExchange(exchange.BinanceConfig{
		APIKey:        cfg.Exchange.APIKey,
		SecretKey:     cfg.Exchange.SecretKey,
		Testnet:       cfg.Exchange.Testnet,
		QuoteCurrency: cfg.Trading.QuoteCurrency,
		Symbols:       cfg.Trading.Symbols,
		RetryConfig:   exchange.DefaultRetryConfig(),
	}, config.NewLogger("exchange"))

	var venue exchange.Exchange = live
	if !cfg.Trading.IsLive() {
		paper, err := exchange.NewPaperExchange(exchange.PaperConfig{
			InitialCapital: cfg.Trading.InitialCapital,
			FeeRate:        cfg.Trading.FeeRate,
			QuoteCurrency:  cfg.Trading.QuoteCurrency,
			Futures:        cfg.Trading.IsFutures(),
			StatePath:      cfg.App.DataDir + "/paper_wallet.json",
		}, live, config.NewLogger("paper"))
		if err != nil {
			return nil, err
		}
		venue = paper
	}

	var priceCache market.PriceCache = market.NewMemoryPriceCache(market.DefaultTickerTTL)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		priceCache = market.NewRedisPriceCache(client, market.DefaultTickerTTL, config.NewLogger("price_cache"))
	}

	mda := market.NewAdapter(venue, market.AdapterConfig{
		MinRequestGap: cfg.Exchange.MinRequestGap(),
		MinCandles:    cfg.Indicators.MinCandles,
	}, priceCache, config.NewLogger("market"))

	scorer, err := scoring.NewScorer(cfg.Scoring, config.NewLogger("scoring"))
	if err != nil {
		return nil, err
	}

	tracker, err := position.NewTracker(cfg.App.DataDir, config.NewLogger("position"))
	if err != nil {
		return nil, err
	}

	exec := executor.New(venue, executor.Config{
		Mode:             cfg.Trading.Mode,
		QuoteCurrency:    cfg.Trading.QuoteCurrency,
		Futures:          cfg.Trading.IsFutures(),
		MinOrderNotional: cfg.Allocation.MinOrderNotional,
	}, tradeStore, config.NewLogger("executor"))

	daily := risk.NewDailyTracker(cfg.Risk, config.NewLogger("daily_risk"))

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		market:     mda,
		indicators: indicators.NewEngine(cfg.Indicators),
		scorer:     scorer,
		allocator:  allocator.NewAllocator(cfg.Allocation, config.NewLogger("allocator")),
		exec:       exec,
		tracker:    tracker,
		risk:       risk.NewEngine(cfg.Risk, config.NewLogger("risk")),
		daily:      daily,
		reconciler: reconcile.New(venue, tracker, exec, alertMgr, config.NewLogger("reconciler")),
		store:      tradeStore,
		alerts:     alertMgr,
		snapshots:  make(map[string]*indicators.Snapshot),
		profiles:   make(map[string]*indicators.VolatilityProfile),
		scores:     make(map[string]*scoring.Result),
	}

	e.sched = scheduler.New(scheduler.Options{
		Location:       cfg.Risk.Location(),
		MisfireGrace:   time.Duration(cfg.Scheduler.MisfireGraceSec) * time.Second,
		EntriesAllowed: daily.EntriesAllowed,
	}, alertMgr, logger)

	if cfg.Monitoring.EnableMetrics {
		e.metricsSrv = metrics.NewServer(cfg.Monitoring.PrometheusPort, logger)
	}

	if err := e.registerJobs(); err != nil {
		return nil, err
	}
	return e, nil
}

// SetSentimentProvider installs an optional sentiment source.
func (e *Engine) SetSentimentProvider(p SentimentProvider) {
	e.sentiment = p
}

func (e *Engine) registerJobs() error {
	sc := e.cfg.Scheduler
	jobs := []scheduler.JobSpec{
		{Name: "data_collection", Every: minutes(sc.DataIntervalMin), Fn: e.collectData},
		{Name: "indicator_calc", Every: minutes(sc.IndicatorIntervalMin), Fn: e.computeIndicators},
		{Name: "scoring", Every: minutes(sc.ScoringIntervalMin), Fn: e.scoreSymbols},
		{Name: "buy_execution", Every: minutes(sc.BuyIntervalMin), Gated: true, Fn: e.executeBuys},
		{Name: "risk_check", Every: minutes(sc.RiskIntervalMin), Fn: e.checkRisk},
		{Name: "daily_feedback", DailyAt: sc.DailyFeedbackAt, Fn: e.dailyFeedback},
	}
	for _, spec := range jobs {
		if err := e.sched.Add(spec); err != nil {
			return err
		}
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// Run starts the metrics server and the scheduler and blocks until the
// context is cancelled. Open positions are left as-is on shutdown; the
// reconciler picks them up on the next start.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.Trading.IsLive() {
		capital, err := e.exec.SyncInitialCapital(ctx)
		if err != nil {
			return fmt.Errorf("failed to sync initial capital: %w", err)
		}
		e.cfg.Trading.InitialCapital = capital
	}

	if e.metricsSrv != nil {
		e.metricsSrv.Start()
	}
	metrics.OpenPositions.Set(float64(e.tracker.Count()))

	e.logger.Info().
		Str("mode", e.cfg.Trading.Mode).
		Str("market_type", e.cfg.Trading.MarketType).
		Strs("symbols", e.cfg.Trading.Symbols).
		Msg("Engine starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.sched.Run(gctx)
	})

	err := g.Wait()

	// Summaries still flush during shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if ferr := e.dailyFeedback(shutdownCtx); ferr != nil {
		e.logger.Warn().Err(ferr).Msg("Failed to write shutdown summary")
	}
	if e.metricsSrv != nil {
		e.metricsSrv.Shutdown(shutdownCtx)
	}
	e.store.Close()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Pause blocks new entries; exits and data jobs keep running.
func (e *Engine) Pause() { e.daily.Pause() }

// Resume lifts a manual pause.
func (e *Engine) Resume() { e.daily.Resume() }

// JobStats exposes per-job scheduler statistics.
func (e *Engine) JobStats() map[string]scheduler.JobStats {
	return e.sched.Stats()
}
