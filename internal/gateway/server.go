// Package gateway is the HTTP surface of the voice gateway: the telephony
// webhook, the media stream WebSocket that spawns one session per call, and
// the operational endpoints (health, readiness, metrics).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spicebay/voicegate/internal/menu"
	"github.com/spicebay/voicegate/internal/model"
	"github.com/spicebay/voicegate/internal/observe"
	"github.com/spicebay/voicegate/internal/session"
	"github.com/spicebay/voicegate/internal/store"
	"github.com/spicebay/voicegate/internal/telephony"
)

// Config carries the server dependencies.
type Config struct {
	ListenAddr string
	PublicHost string

	Logger  *slog.Logger
	Metrics *observe.Metrics

	Gateway  store.Gateway
	Model    *model.Client
	Transfer *telephony.TransferController
	Prices   *menu.PriceMap
	Registry *session.Registry

	RestaurantID   string
	RestaurantName string

	// Readiness probes the database for /readyz. Nil means always ready.
	Readiness func(ctx context.Context) error
}

// Server owns the HTTP listener and the lifecycle of every call session.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *observe.Metrics
	httpSrv   *http.Server
	startedAt time.Time

	mu     sync.Mutex
	runCtx context.Context

	sessions sync.WaitGroup
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = session.NewRegistry()
	}
	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /twiml", telephony.NewTwiMLHandler(cfg.PublicHost, cfg.Logger))
	mux.HandleFunc("GET /stream", s.handleStream)

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then shuts the listener down and waits
// for the live sessions to finish. The caller enforces any hard deadline.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.ListenAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "sessions", s.cfg.Registry.Count())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("listener shutdown", "err", err)
	}

	// Sessions observe the cancelled run context and close themselves.
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("gateway: %d sessions did not finish in time", s.cfg.Registry.Count())
	}
}

// handleStream upgrades the telephony media WebSocket and runs one session
// for the life of the call.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	leg, err := telephony.Accept(w, r, s.logger)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "err", err)
		return
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = r.Context()
	}

	sess := session.New(session.Config{
		Logger:  s.logger,
		Metrics: s.metrics,
		Media:   leg,
		Dial: func(ctx context.Context, cfg model.SessionConfig) (session.ModelLeg, error) {
			return s.cfg.Model.Connect(ctx, cfg)
		},
		Gateway:        s.cfg.Gateway,
		Transfer:       s.cfg.Transfer,
		Prices:         s.cfg.Prices,
		Registry:       s.cfg.Registry,
		RestaurantID:   s.cfg.RestaurantID,
		RestaurantName: s.cfg.RestaurantName,
	})

	s.sessions.Add(1)
	defer s.sessions.Done()
	sess.Run(ctx)
}
