package internal

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tradeflow/config"
	"github.com/vadiminshakov/tradeflow/internal/clients"
	"github.com/vadiminshakov/tradeflow/internal/notify"
	"github.com/vadiminshakov/tradeflow/internal/services/decision"
	"github.com/vadiminshakov/tradeflow/internal/services/execution"
	"github.com/vadiminshakov/tradeflow/internal/services/marketdata"
	"github.com/vadiminshakov/tradeflow/internal/services/monitor"
	"github.com/vadiminshakov/tradeflow/internal/services/oracle"
	"github.com/vadiminshakov/tradeflow/internal/services/performance"
	"github.com/vadiminshakov/tradeflow/internal/services/pipeline"
	"github.com/vadiminshakov/tradeflow/internal/services/portfolio"
	"github.com/vadiminshakov/tradeflow/internal/services/risk"
	"github.com/vadiminshakov/tradeflow/internal/services/technical"
	"github.com/vadiminshakov/tradeflow/internal/services/venue"
	"github.com/vadiminshakov/tradeflow/internal/storage/postgres"
	"github.com/vadiminshakov/tradeflow/internal/storage/walstore"
	"github.com/vadiminshakov/tradeflow/internal/web"
)

// binanceQtyPrecision decimal places of market sell quantities on Binance.
const binanceQtyPrecision = 4

// Storage persisted positions and trade journal.
type Storage struct {
	Positions portfolio.PositionStore
	Trades    performance.TradeJournal
	closers   []func() error
}

// Close releases the underlying stores.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("failed to close storage: %v", errs)
	}
	return nil
}

// OpenStorage opens the store selected by the configuration.
func OpenStorage(ctx context.Context, cfg config.Storage) (*Storage, error) {
	switch cfg.Driver {
	case config.StoragePostgres:
		client, err := postgres.New(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Positions: postgres.NewPositionStore(client),
			Trades:    postgres.NewTradeJournal(client),
			closers:   []func() error{func() error { client.Close(); return nil }},
		}, nil
	case config.StorageWAL, "":
		positions, err := walstore.NewPositionStore(cfg.WALDir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open position store")
		}
		trades, err := walstore.NewTradeJournal(cfg.WALDir)
		if err != nil {
			_ = positions.Close()
			return nil, errors.Wrap(err, "failed to open trade journal")
		}
		return &Storage{
			Positions: positions,
			Trades:    trades,
			closers:   []func() error{positions.Close, trades.Close},
		}, nil
	default:
		return nil, errors.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// Ledger portfolio and performance restored from storage.
type Ledger struct {
	Portfolio   *portfolio.Portfolio
	Performance *performance.Analyzer
}

// RestoreLedger rebuilds the trade history first, since cash depends on the realized profit.
func RestoreLedger(ctx context.Context, cfg config.Config, store *Storage, logger *zap.Logger) (Ledger, error) {
	perf := performance.NewAnalyzer(cfg.Capital, store.Trades, logger)
	if err := perf.Restore(ctx); err != nil {
		return Ledger{}, errors.Wrap(err, "failed to restore trade history")
	}
	pf := portfolio.New(cfg.Capital, store.Positions, logger)
	if err := pf.Restore(ctx, perf.Metrics().TotalProfitLoss); err != nil {
		return Ledger{}, errors.Wrap(err, "failed to restore positions")
	}
	return Ledger{Portfolio: pf, Performance: perf}, nil
}

// App fully wired bot.
type App struct {
	Bot      *TradingBot
	Ledger   Ledger
	Notifier *notify.Notifier
	Server   *web.Server

	storage *Storage
	cache   *marketdata.RedisCache
	logger  *zap.Logger
}

// Build wires every component from the configuration. The venue must answer a ping.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{logger: logger}

	binanceClient := clients.NewBinanceClient(cfg.Binance)

	market, cache, err := newMarketData(ctx, cfg, binanceClient, logger)
	if err != nil {
		return nil, err
	}
	app.cache = cache

	app.storage, err = OpenStorage(ctx, cfg.Storage)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Ledger, err = RestoreLedger(ctx, cfg, app.storage, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	pf := app.Ledger.Portfolio

	var v execution.Venue
	switch cfg.Venue {
	case config.VenueBinance:
		v = venue.NewBinance(binanceClient, binanceQtyPrecision, logger)
	default:
		paper := venue.NewPaper(market, cfg.Quote, cfg.Capital, logger)
		paper.SetBalance(cfg.Quote, pf.Cash())
		for _, pos := range pf.Positions() {
			paper.SetBalance(pos.Asset.Address, pos.Quantity)
		}
		v = paper
	}

	engine := execution.NewEngine(v, execution.Config{
		MaxAttempts:     cfg.Exec.MaxAttempts,
		Backoff:         cfg.Exec.Backoff,
		CallTimeout:     cfg.Exec.CallTimeout,
		ConfirmPolls:    cfg.Exec.ConfirmPolls,
		ConfirmInterval: cfg.Exec.ConfirmInterval,
		QuoteCurrency:   cfg.Quote,
	}, logger)
	if err := engine.Ping(ctx); err != nil {
		app.Close()
		return nil, errors.Wrapf(err, "venue %s is unreachable", cfg.Venue)
	}

	app.Notifier = notify.NewNotifier(cfg.Notify.QueueSize, logger, senders(cfg.Notify, logger)...)

	mon := monitor.New(market, engine, pf, app.Ledger.Performance, app.Notifier, cfg.Risk.MaxSlippage, logger)

	var o oracle.Oracle = oracle.NewRules()
	if cfg.Oracle.Enabled() {
		o = oracle.NewLLM(oracle.LLMConfig{
			APIURL:     cfg.Oracle.APIURL,
			APIKey:     cfg.Oracle.APIKey,
			Model:      cfg.Oracle.Model,
			Timeout:    cfg.Oracle.Timeout,
			MaxRetries: cfg.Oracle.MaxRetries,
		}, logger)
	}
	logger.Info("oracle selected", zap.String("oracle", o.Name()))

	pipe := pipeline.New(pipeline.Config{
		Quote:                  cfg.Quote,
		Benchmark:              cfg.Pipeline.Benchmark,
		CandidateLimit:         cfg.Pipeline.CandidateLimit,
		HistoryLimit:           cfg.Pipeline.HistoryLimit,
		Concurrency:            cfg.Pipeline.Concurrency,
		MinLiquidity:           cfg.Pipeline.MinLiquidity,
		MinVolume24h:           cfg.Pipeline.MinVolume24h,
		MaxHolderConcentration: cfg.Pipeline.MaxHolderConcentration,
		RequireVerified:        cfg.Pipeline.RequireVerified,
		MaxPositions:           cfg.Pipeline.MaxPositions,
		Cooldown:               cfg.Pipeline.Cooldown,
	}, pipeline.Deps{
		Market:    market,
		Technical: technical.NewAnalyzer(logger),
		Risk:      risk.NewManager(risk.Limits{MinPosition: cfg.Risk.MinPosition, MaxPosition: cfg.Risk.MaxPosition}, logger),
		Oracle:    o,
		Synthesizer: decision.NewSynthesizer(decision.Config{
			MinConfidence: cfg.Risk.MinConfidence,
			MinPosition:   cfg.Risk.MinPosition,
			MaxPosition:   cfg.Risk.MaxPosition,
			MaxSlippage:   cfg.Risk.MaxSlippage,

			MaxStagedEntries: cfg.Risk.MaxStagedEntries,
			MaxStagedHours:   cfg.Risk.MaxStagedHours,
		}, logger),
		Executor:  engine,
		Book:      pf,
		Monitor:   mon,
		Publisher: app.Notifier,
	}, logger)

	app.Bot = NewTradingBot(pipe, cfg.Interval, logger)
	if cfg.Web.Addr != "" {
		app.Server = web.NewServer(cfg.Web.Addr, pf, app.Ledger.Performance, app.Bot, logger)
	}

	return app, nil
}

// Run runs the bot, the notifier and the status server until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// the notifier outlives the bot so exit notifications of the last cycle are delivered
	notifyCtx, stopNotifier := context.WithCancel(context.WithoutCancel(ctx))
	go a.Notifier.Run(notifyCtx)

	if a.Server != nil {
		g.Go(func() error { return a.Server.Start(gctx) })
	}
	g.Go(func() error {
		err := a.Bot.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err := g.Wait()
	stopNotifier()
	a.Notifier.Wait()
	return err
}

// Close releases storage and cache connections.
func (a *App) Close() {
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("failed to close storage", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", zap.Error(err))
		}
	}
}

func newMarketData(ctx context.Context, cfg config.Config, binanceClient *binance.Client, logger *zap.Logger) (marketdata.Provider, *marketdata.RedisCache, error) {
	var providers []marketdata.Provider
	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderBinance:
			providers = append(providers, marketdata.NewBinance(binanceClient, cfg.Quote, cfg.KlineInterval))
		case config.ProviderBybit:
			providers = append(providers, marketdata.NewBybit(clients.NewBybitClient(cfg.Bybit), cfg.Quote))
		default:
			return nil, nil, errors.Errorf("unsupported market data provider: %s", name)
		}
	}

	var market marketdata.Provider = marketdata.NewChain(logger, providers...)
	if !cfg.Cache.Enabled() {
		return market, nil, nil
	}

	cache := marketdata.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB)
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, market data is not cached", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		_ = cache.Close()
		return market, nil, nil
	}
	return marketdata.NewCached(market, cache, cfg.Cache.TTL, logger), cache, nil
}

func senders(cfg config.Notify, logger *zap.Logger) []notify.Sender {
	out := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		out = append(out, notify.NewWebhookSender(cfg.WebhookURL))
	}
	return out
}
