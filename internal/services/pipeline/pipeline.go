// Package pipeline runs one trading cycle: candidate selection, analysis, risk gating and execution.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/metrics"
	"github.com/vadiminshakov/tradeflow/internal/services/decision"
	"github.com/vadiminshakov/tradeflow/internal/services/oracle"
	"github.com/vadiminshakov/tradeflow/internal/trace"
)

const (
	DefaultCandidateLimit = 20
	DefaultHistoryLimit   = 100
	DefaultConcurrency    = 4
	DefaultMaxPositions   = 5

	// volume profile turns high above this absolute 24h price change, in percent
	highVolumeChange = 50.0
)

type (
	MarketData interface {
		GetAssetSnapshot(ctx context.Context, address string) (domain.AssetSnapshot, error)
		GetTrendingAssets(ctx context.Context, limit int) ([]domain.AssetSnapshot, error)
		GetPriceHistory(ctx context.Context, address string, limit int) ([]float64, error)
	}

	TechnicalAnalyzer interface {
		Analyze(prices []float64) (domain.TechnicalSignals, error)
	}

	RiskManager interface {
		Assess(asset domain.AssetSnapshot, signals domain.TechnicalSignals, market domain.MarketContext, exposure domain.Exposure) domain.RiskAssessment
		ValidatePositionSize(size, portfolioValue decimal.Decimal) error
	}

	Synthesizer interface {
		Synthesize(asset domain.AssetSnapshot, signals domain.TechnicalSignals, market domain.MarketContext, risk domain.RiskAssessment, verdict domain.OracleVerdict) domain.TradingDecision
		Hold(asset domain.AssetSnapshot, signals domain.TechnicalSignals, market domain.MarketContext, risk domain.RiskAssessment, reason string) domain.TradingDecision
	}

	Executor interface {
		Execute(ctx context.Context, d domain.TradingDecision) (domain.ExecutionResult, error)
	}

	// Book is the portfolio decisions are sized against and fills are booked into.
	Book interface {
		Position(address string) (*domain.PortfolioPosition, bool)
		Positions() []*domain.PortfolioPosition
		Count() int
		Cash() decimal.Decimal
		Value(prices map[string]decimal.Decimal) decimal.Decimal
		Exposure(address string, prices map[string]decimal.Decimal) domain.Exposure
		ApplyFill(ctx context.Context, asset domain.AssetSnapshot, d domain.TradingDecision, res domain.ExecutionResult) (*domain.Trade, error)
		HasPending(address string) bool
	}

	// PositionMonitor closes positions on stop-loss, take-profit and sell signals
	// and settles orders the venue confirmed late.
	PositionMonitor interface {
		Reconcile(ctx context.Context) []domain.Trade
		Evaluate(ctx context.Context) ([]domain.Trade, error)
		Close(ctx context.Context, address, reasoning string) (domain.Trade, bool)
	}

	Publisher interface {
		Publish(text string)
	}
)

// Config pipeline settings.
type Config struct {
	Quote string
	// Benchmark address of the asset whose trend stands for the whole market.
	Benchmark      string
	CandidateLimit int
	HistoryLimit   int
	Concurrency    int

	MinLiquidity           decimal.Decimal
	MinVolume24h           decimal.Decimal
	MaxHolderConcentration float64
	RequireVerified        bool

	MaxPositions int
	Cooldown     time.Duration
}

func (c Config) withDefaults() Config {
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = DefaultCandidateLimit
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = DefaultMaxPositions
	}
	return c
}

// Pipeline drives a trading cycle. RunCycle must not be called concurrently.
type Pipeline struct {
	cfg         Config
	market      MarketData
	technical   TechnicalAnalyzer
	risk        RiskManager
	oracle      oracle.Oracle
	synthesizer Synthesizer
	executor    Executor
	book        Book
	monitor     PositionMonitor
	publisher   Publisher
	logger      *zap.Logger
	now         func() time.Time

	// lastTrade execution time per asset, for the cooldown
	lastTrade map[string]time.Time
}

// Deps collaborators of the pipeline. Publisher may be nil.
type Deps struct {
	Market      MarketData
	Technical   TechnicalAnalyzer
	Risk        RiskManager
	Oracle      oracle.Oracle
	Synthesizer Synthesizer
	Executor    Executor
	Book        Book
	Monitor     PositionMonitor
	Publisher   Publisher
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithClock replaces the clock used for cooldowns and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:         cfg.withDefaults(),
		market:      deps.Market,
		technical:   deps.Technical,
		risk:        deps.Risk,
		oracle:      deps.Oracle,
		synthesizer: deps.Synthesizer,
		executor:    deps.Executor,
		book:        deps.Book,
		monitor:     deps.Monitor,
		publisher:   deps.Publisher,
		logger:      logger.With(zap.String("component", "pipeline")),
		now:         time.Now,
		lastTrade:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// analysis result of one candidate.
type analysis struct {
	asset    domain.AssetSnapshot
	risk     domain.RiskAssessment
	decision domain.TradingDecision
	err      error
	skipped  string
}

// RunCycle runs one full cycle. Only a failure to fetch candidates fails the cycle;
// per-asset errors end up in the report.
func (p *Pipeline) RunCycle(ctx context.Context) (report CycleReport, err error) {
	start := p.now()
	report.StartedAt = start

	ctx, span := trace.StartSpan(ctx, "pipeline.RunCycle")
	defer func() {
		trace.End(span, err)
		report.Duration = p.now().Sub(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.CyclesTotal.WithLabelValues(outcome).Inc()
		metrics.CycleDuration.Observe(report.Duration.Seconds())
	}()

	settled := p.monitor.Reconcile(ctx)
	for _, t := range settled {
		p.lastTrade[t.Address] = p.now()
	}

	candidates, err := p.candidates(ctx)
	if err != nil {
		return report, err
	}

	report.Market = p.marketContext(ctx, candidates)

	eligible := make([]domain.AssetSnapshot, 0, len(candidates))
	for _, asset := range candidates {
		if reason := p.ineligible(asset); reason != "" {
			metrics.AssetsAnalyzed.WithLabelValues("skipped").Inc()
			report.add(AssetReport{Address: asset.Address, Symbol: asset.Symbol, Outcome: OutcomeSkipped, Reason: reason})
			continue
		}
		eligible = append(eligible, asset)
	}

	p.logger.Info("cycle started",
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(eligible)),
		zap.String("market_trend", string(report.Market.Trend)),
		zap.Float64("breadth", report.Market.SectorPerformance),
	)

	prices := priceMap(candidates)
	for _, a := range p.analyze(ctx, eligible, report.Market, prices) {
		report.add(p.act(ctx, a, prices))
	}

	exits, monErr := p.monitor.Evaluate(ctx)
	if monErr != nil {
		p.logger.Error("position monitor failed", zap.Error(monErr))
	}
	report.Exits = append(settled, exits...)
	for _, t := range exits {
		p.lastTrade[t.Address] = p.now()
	}

	p.logger.Info("cycle finished",
		zap.Int("executed", report.Count(OutcomeExecuted)),
		zap.Int("held", report.Count(OutcomeHold)),
		zap.Int("failed", report.Count(OutcomeFailed)),
		zap.Int("pending", report.Count(OutcomePending)),
		zap.Int("exits", len(report.Exits)),
		zap.Duration("elapsed", p.now().Sub(start)),
	)

	return report, nil
}

// candidates returns trending assets plus every held asset, so sell signals reach open positions.
func (p *Pipeline) candidates(ctx context.Context) ([]domain.AssetSnapshot, error) {
	trending, err := p.market.GetTrendingAssets(ctx, p.cfg.CandidateLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch trending assets")
	}

	seen := make(map[string]struct{}, len(trending))
	for _, a := range trending {
		seen[a.Address] = struct{}{}
	}
	for _, pos := range p.book.Positions() {
		if _, ok := seen[pos.Asset.Address]; ok {
			continue
		}
		snap, err := p.market.GetAssetSnapshot(ctx, pos.Asset.Address)
		if err != nil {
			p.logger.Warn("failed to fetch held asset", zap.String("asset", pos.Asset.Address), zap.Error(err))
			continue
		}
		seen[snap.Address] = struct{}{}
		trending = append(trending, snap)
	}

	return trending, nil
}

// ineligible returns why the asset is not analyzed this cycle, or "" when it is.
// Held assets skip the market filters so they can always be exited.
func (p *Pipeline) ineligible(asset domain.AssetSnapshot) string {
	if last, ok := p.lastTrade[asset.Address]; ok && p.cfg.Cooldown > 0 {
		if left := p.cfg.Cooldown - p.now().Sub(last); left > 0 {
			return fmt.Sprintf("cooldown, %s left", left.Round(time.Second))
		}
	}
	if p.book.HasPending(asset.Address) {
		return "order pending confirmation"
	}
	if _, held := p.book.Position(asset.Address); held {
		return ""
	}

	switch {
	case asset.Liquidity.LessThan(p.cfg.MinLiquidity):
		return fmt.Sprintf("liquidity %s below %s", asset.Liquidity.StringFixed(0), p.cfg.MinLiquidity.String())
	case asset.Volume24h.LessThan(p.cfg.MinVolume24h):
		return fmt.Sprintf("24h volume %s below %s", asset.Volume24h.StringFixed(0), p.cfg.MinVolume24h.String())
	case p.cfg.MaxHolderConcentration > 0 && asset.HolderConcentration > p.cfg.MaxHolderConcentration:
		return fmt.Sprintf("holder concentration %.2f above %.2f", asset.HolderConcentration, p.cfg.MaxHolderConcentration)
	case p.cfg.RequireVerified && !asset.Verified:
		return "not verified"
	}
	return ""
}

// marketContext builds the cycle-wide context: benchmark trend and breadth of the candidate set.
func (p *Pipeline) marketContext(ctx context.Context, candidates []domain.AssetSnapshot) domain.MarketContext {
	mc := domain.MarketContext{
		Trend:             domain.MarketSideways,
		SectorPerformance: Breadth(candidates),
		VolumeProfile:     domain.VolumeProfileNormal,
	}
	if p.cfg.Benchmark == "" {
		return mc
	}

	history, err := p.market.GetPriceHistory(ctx, p.cfg.Benchmark, p.cfg.HistoryLimit)
	if err != nil {
		p.logger.Warn("failed to fetch benchmark history, assuming sideways market", zap.String("benchmark", p.cfg.Benchmark), zap.Error(err))
		return mc
	}
	signals, err := p.technical.Analyze(history)
	if err != nil {
		p.logger.Warn("failed to analyze benchmark, assuming sideways market", zap.String("benchmark", p.cfg.Benchmark), zap.Error(err))
		return mc
	}
	mc.Trend = domain.MarketTrendFrom(signals.Trend)
	return mc
}

// analyze runs the read-only analysis of every asset with bounded concurrency.
// Results keep the order of assets.
func (p *Pipeline) analyze(ctx context.Context, assets []domain.AssetSnapshot, market domain.MarketContext, prices map[string]decimal.Decimal) []analysis {
	results := make([]analysis, len(assets))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, asset := range assets {
		g.Go(func() error {
			results[i] = p.analyzeAsset(ctx, asset, AssetMarket(market, asset, p.cfg.MinLiquidity), prices)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pipeline) analyzeAsset(ctx context.Context, asset domain.AssetSnapshot, market domain.MarketContext, prices map[string]decimal.Decimal) (res analysis) {
	res.asset = asset

	ctx, span := trace.StartSpan(ctx, "pipeline.analyze", attribute.String("asset", asset.Address))
	defer func() { trace.End(span, res.err) }()

	history, err := p.market.GetPriceHistory(ctx, asset.Address, p.cfg.HistoryLimit)
	if err != nil {
		res.err = errors.Wrapf(err, "failed to fetch price history of %s", asset.Address)
		return res
	}
	signals, err := p.technical.Analyze(history)
	if errors.Is(err, domain.ErrInsufficientData) {
		res.skipped = "insufficient price history"
		return res
	}
	if err != nil {
		res.err = errors.Wrapf(err, "failed to analyze %s", asset.Address)
		return res
	}

	res.risk = p.risk.Assess(asset, signals, market, p.book.Exposure(asset.Address, prices))

	ac := oracle.AssetContext{
		Asset:   asset,
		Signals: signals,
		Market:  market,
		Risk:    res.risk,
		Balance: p.book.Cash(),
		Quote:   p.cfg.Quote,
	}
	if pos, ok := p.book.Position(asset.Address); ok {
		ac.Position = pos
	}

	verdict, err := p.oracle.Evaluate(ctx, ac)
	if err != nil {
		metrics.OracleFailures.Inc()
		p.logger.Warn("oracle failed, holding", zap.String("asset", asset.Address), zap.String("oracle", p.oracle.Name()), zap.Error(err))
		res.decision = p.synthesizer.Hold(asset, signals, market, res.risk, "oracle unavailable: "+err.Error())
	} else {
		res.decision = p.synthesizer.Synthesize(asset, signals, market, res.risk, verdict)
	}
	res.decision.Strategy = p.oracle.Name()

	return res
}

// act executes the decision of one analyzed asset.
func (p *Pipeline) act(ctx context.Context, a analysis, prices map[string]decimal.Decimal) AssetReport {
	rep := AssetReport{Address: a.asset.Address, Symbol: a.asset.Symbol}

	switch {
	case a.err != nil:
		metrics.AssetsAnalyzed.WithLabelValues("error").Inc()
		p.logger.Error("asset analysis failed", zap.String("asset", a.asset.Address), zap.Error(a.err))
		rep.Outcome = OutcomeFailed
		rep.Reason = a.err.Error()
		return rep
	case a.skipped != "":
		metrics.AssetsAnalyzed.WithLabelValues("skipped").Inc()
		rep.Outcome = OutcomeSkipped
		rep.Reason = a.skipped
		return rep
	}
	metrics.AssetsAnalyzed.WithLabelValues("decision").Inc()

	d := a.decision
	switch d.Action {
	case domain.ActionBuy:
		if err := p.gate(d, a.risk, prices); err != nil {
			metrics.RiskViolations.Inc()
			p.logger.Warn("buy rejected by risk gate", zap.String("asset", d.Address), zap.String("size", d.Size.StringFixed(2)), zap.Error(err))
			d = decision.Downgrade(d, err.Error())
		}
	case domain.ActionSell:
		if _, ok := p.book.Position(d.Address); !ok {
			d = decision.Downgrade(d, "no open position to sell")
		}
	}

	metrics.DecisionsTotal.WithLabelValues(d.Action.String()).Inc()
	rep.Action = d.Action
	rep.Reason = d.Reasoning

	switch d.Action {
	case domain.ActionBuy:
		return p.buy(ctx, a.asset, d, rep)
	case domain.ActionSell:
		return p.sell(ctx, d, rep)
	default:
		rep.Outcome = OutcomeHold
		return rep
	}
}

// gate is the hard risk check every buy passes before execution.
func (p *Pipeline) gate(d domain.TradingDecision, risk domain.RiskAssessment, prices map[string]decimal.Decimal) error {
	if err := p.risk.ValidatePositionSize(d.Size, p.book.Value(prices)); err != nil {
		return err
	}
	if d.Size.GreaterThan(risk.MaxPositionSize) {
		return domain.NewRiskViolation("size %s above max position size %s", d.Size.StringFixed(2), risk.MaxPositionSize.StringFixed(2))
	}
	if _, held := p.book.Position(d.Address); !held && p.book.Count() >= p.cfg.MaxPositions {
		return domain.NewRiskViolation("max open positions %d reached", p.cfg.MaxPositions)
	}
	if cash := p.book.Cash(); d.Size.GreaterThan(cash) {
		return domain.NewRiskViolation("size %s above available cash %s", d.Size.StringFixed(2), cash.StringFixed(2))
	}
	return nil
}

func (p *Pipeline) buy(ctx context.Context, asset domain.AssetSnapshot, d domain.TradingDecision, rep AssetReport) AssetReport {
	res, err := p.executor.Execute(ctx, d)
	rep.Result = &res

	// staged entries can fail after some tranches filled; those are booked too
	if _, bookErr := p.book.ApplyFill(ctx, asset, d, res); bookErr != nil {
		p.logger.Error("failed to book buy fill", zap.String("asset", d.Address), zap.Error(bookErr))
	}
	if res.Filled() || len(res.Pending) > 0 {
		p.lastTrade[d.Address] = p.now()
	}
	if res.Filled() {
		if p.publisher != nil {
			p.publisher.Publish(fmt.Sprintf("BUY %s: %s @ %s (%s, %s)",
				d.Symbol, res.Quantity.String(), res.Price.String(), res.Type, res.Status))
		}
	}

	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Reason = err.Error()
		return rep
	}
	if !res.Filled() && len(res.Pending) > 0 {
		rep.Outcome = OutcomePending
		rep.Reason = fmt.Sprintf("%d order(s) awaiting confirmation", len(res.Pending))
		return rep
	}
	if !res.Filled() {
		rep.Outcome = OutcomeFailed
		rep.Reason = fmt.Sprintf("order %s not filled", res.Status)
		return rep
	}
	rep.Outcome = OutcomeExecuted
	return rep
}

func (p *Pipeline) sell(ctx context.Context, d domain.TradingDecision, rep AssetReport) AssetReport {
	trade, ok := p.monitor.Close(ctx, d.Address, d.Reasoning)
	if !ok && p.book.HasPending(d.Address) {
		p.lastTrade[d.Address] = p.now()
		rep.Outcome = OutcomePending
		rep.Reason = "exit awaiting confirmation"
		return rep
	}
	if !ok {
		rep.Outcome = OutcomeFailed
		rep.Reason = "exit not filled"
		return rep
	}
	p.lastTrade[d.Address] = p.now()
	rep.Outcome = OutcomeExecuted
	rep.Trade = &trade
	return rep
}

// Breadth share of assets up over 24h, 0.5 for an empty set.
func Breadth(assets []domain.AssetSnapshot) float64 {
	if len(assets) == 0 {
		return 0.5
	}
	up := 0
	for _, a := range assets {
		if a.PriceChange24h > 0 {
			up++
		}
	}
	return float64(up) / float64(len(assets))
}

// AssetMarket specializes the cycle context for one asset.
func AssetMarket(base domain.MarketContext, asset domain.AssetSnapshot, minLiquidity decimal.Decimal) domain.MarketContext {
	mc := base
	mc.LiquidityScore = LiquidityScore(asset, minLiquidity)
	mc.VolumeProfile = domain.VolumeProfileNormal
	if math.Abs(asset.PriceChange24h) > highVolumeChange {
		mc.VolumeProfile = domain.VolumeProfileHigh
	}
	mc.Sentiment = 0
	if asset.SocialScore != nil {
		mc.Sentiment = math.Max(-1, math.Min(1, *asset.SocialScore))
	}
	return mc
}

// LiquidityScore liquidity relative to market cap in [0, 1]. Without a market cap the
// liquidity is scored against twice the minimum acceptable liquidity.
func LiquidityScore(asset domain.AssetSnapshot, minLiquidity decimal.Decimal) float64 {
	var ratio decimal.Decimal
	switch {
	case asset.MarketCap.IsPositive():
		ratio = asset.Liquidity.Div(asset.MarketCap)
	case minLiquidity.IsPositive():
		ratio = asset.Liquidity.Div(minLiquidity.Mul(decimal.NewFromInt(2)))
	default:
		return 0
	}
	f, _ := ratio.Float64()
	return math.Max(0, math.Min(1, f))
}

func priceMap(assets []domain.AssetSnapshot) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		if a.PriceQuote.IsPositive() {
			prices[a.Address] = a.PriceQuote
		}
	}
	return prices
}
