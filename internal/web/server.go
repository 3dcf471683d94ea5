// Package web serves the status API: health, metrics, positions and performance.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
	"github.com/vadiminshakov/tradeflow/internal/metrics"
	"github.com/vadiminshakov/tradeflow/internal/services/pipeline"
)

const tradePollInterval = 2 * time.Second

type (
	PositionReader interface {
		Positions() []*domain.PortfolioPosition
		Position(address string) (*domain.PortfolioPosition, bool)
		Cash() decimal.Decimal
	}

	PerformanceReader interface {
		Metrics() domain.PerformanceMetrics
		Trades() []domain.Trade
		AnalyzeStrategy(name string) domain.StrategyAnalysis
	}

	CycleReader interface {
		LastReport() (pipeline.CycleReport, bool)
	}
)

// Server exposes the status API.
type Server struct {
	Addr        string
	positions   PositionReader
	performance PerformanceReader
	cycles      CycleReader
	logger      *zap.Logger
}

// NewServer creates a new web server instance. cycles may be nil.
func NewServer(addr string, positions PositionReader, performance PerformanceReader, cycles CycleReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:        addr,
		positions:   positions,
		performance: performance,
		cycles:      cycles,
		logger:      logger.With(zap.String("component", "web")),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/positions", s.listPositions)
		r.Get("/positions/{address}", s.getPosition)
		r.Get("/performance", s.getPerformance)
		r.Get("/performance/strategies/{name}", s.getStrategy)
		r.Get("/trades", s.listTrades)
		r.Get("/trades/stream", s.streamTrades)
		r.Get("/cycles/last", s.lastCycle)
	})

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type positionsResponse struct {
	Cash      string         `json:"cash"`
	Positions []positionView `json:"positions"`
}

// positionView adds derived figures to the stored position.
type positionView struct {
	*domain.PortfolioPosition
	UnitCost    string `json:"unit_cost"`
	RealizedPnL string `json:"realized_pnl"`
}

func newPositionView(p *domain.PortfolioPosition) positionView {
	return positionView{
		PortfolioPosition: p,
		UnitCost:          p.UnitCost().String(),
		RealizedPnL:       p.RealizedPnL().String(),
	}
}

func (s *Server) listPositions(w http.ResponseWriter, _ *http.Request) {
	positions := s.positions.Positions()
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, newPositionView(p))
	}
	writeJSON(w, http.StatusOK, positionsResponse{
		Cash:      s.positions.Cash().String(),
		Positions: views,
	})
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	pos, ok := s.positions.Position(address)
	if !ok {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(pos))
}

func (s *Server) getPerformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.performance.Metrics())
}

func (s *Server) getStrategy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.performance.AnalyzeStrategy(chi.URLParam(r, "name")))
}

func (s *Server) listTrades(w http.ResponseWriter, _ *http.Request) {
	trades := s.performance.Trades()
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) lastCycle(w http.ResponseWriter, _ *http.Request) {
	if s.cycles == nil {
		writeError(w, "cycle reports not available", http.StatusServiceUnavailable)
		return
	}
	report, ok := s.cycles.LastReport()
	if !ok {
		writeError(w, "no cycle has finished yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// streamTrades pushes closed trades as server-sent events, starting with the full history.
func (s *Server) streamTrades(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(tradePollInterval)
	defer pollTicker.Stop()

	sent := 0
	sendTrades := func() {
		trades := s.performance.Trades()
		for _, t := range trades[min(sent, len(trades)):] {
			payload, err := json.Marshal(t)
			if err != nil {
				s.logger.Error("failed to encode trade", zap.String("trade_id", t.ID), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: trade\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		sent = len(trades)
		flusher.Flush()
	}

	sendTrades()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			sendTrades()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
