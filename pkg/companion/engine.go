// Package companion assembles the full server: configuration, providers,
// gateways, the session registry, and the HTTP/WebSocket surface.
package companion

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/harunnryd/companion/pkg/dialogue"
	"github.com/harunnryd/companion/pkg/gateway"
	"github.com/harunnryd/companion/pkg/logging"
	"github.com/harunnryd/companion/pkg/memory"
	"github.com/harunnryd/companion/pkg/resilience"
	"github.com/harunnryd/companion/pkg/session"
	"github.com/harunnryd/companion/pkg/transports/ws"
)

// Engine owns every long-lived component and implements runner.Drainer.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	store    *memory.Store
	manager  *session.Manager
	wsServer *ws.Server
	httpSrv  *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine wires the configured providers into a ready-to-start server.
func NewEngine(cfg Config) (*Engine, error) {
	logger := logging.SetDefault(cfg.LogLevel)

	store, err := memory.Open(memory.Config{
		Path:         cfg.Memory.Path,
		MaxOpenConns: cfg.Memory.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}

	recognizer, err := buildRecognizer(cfg.Vendors.STT)
	if err != nil {
		store.Close()
		return nil, err
	}
	synthesizer, err := buildSynthesizer(cfg.Vendors.TTS)
	if err != nil {
		store.Close()
		return nil, err
	}
	llmAdapter, err := buildLLM(cfg.Vendors.LLM)
	if err != nil {
		store.Close()
		return nil, err
	}

	policy := resilience.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:       time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		AttemptTimeout: time.Duration(cfg.Retry.AttemptTimeoutMS) * time.Millisecond,
	}
	breakerCooldown := time.Duration(cfg.Retry.BreakerCooldownMS) * time.Millisecond
	recognition := gateway.NewRecognition(recognizer, policy,
		resilience.NewCircuitBreaker(cfg.Retry.BreakerThreshold, breakerCooldown), logger)
	synthesis := gateway.NewSynthesis(synthesizer, policy,
		resilience.NewCircuitBreaker(cfg.Retry.BreakerThreshold, breakerCooldown), logger)

	coordinator := dialogue.NewCoordinator(llmAdapter, store, policy, dialogue.Config{
		BasePrompt:    cfg.Dialogue.BasePrompt,
		HistoryLimit:  cfg.Dialogue.HistoryLimit,
		MaxSpeakChars: cfg.Dialogue.MaxSpeakChars,
		Modality:      cfg.Dialogue.Modality,
	}, logger)

	manager := session.NewManager(session.Config{
		IdleTimeout:   time.Duration(cfg.Session.IdleTimeoutMS) * time.Millisecond,
		SweepInterval: time.Duration(cfg.Session.SweepIntervalMS) * time.Millisecond,
		CycleTimeout:  time.Duration(cfg.Session.CycleTimeoutMS) * time.Millisecond,
	}, recognition, coordinator, synthesis, logger)

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		manager: manager,
		wsServer: ws.NewServer(ws.Options{
			MaxUtteranceBytes: cfg.Server.MaxUtteranceBytes,
			HeartbeatInterval: time.Duration(cfg.Server.HeartbeatIntervalMS) * time.Millisecond,
			PongTimeout:       time.Duration(cfg.Server.PongTimeoutMS) * time.Millisecond,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		}, logger),
	}
	e.httpSrv = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: e.router(),
	}
	return e, nil
}

func (e *Engine) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get(e.cfg.Server.WSPath, e.handleWS)
	r.Get("/healthz", e.handleHealth)
	return r
}

// Start launches the HTTP listener and the session sweeper. Non-blocking;
// Drain stops everything.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		if err := e.manager.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("session sweeper stopped", "error", err)
		}
	}()
	go func() {
		e.logger.Info("listening", "addr", e.cfg.Server.Addr, "ws_path", e.cfg.Server.WSPath)
		if err := e.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("http server failed", "error", err)
			e.cancel()
		}
	}()
	return nil
}

// Drain stops accepting connections, closes every live session, and
// releases the store.
func (e *Engine) Drain() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(e.cfg.Server.DrainTimeoutMS)*time.Millisecond)
	defer cancel()
	if err := e.httpSrv.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn("http shutdown", "error", err)
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.manager.Drain()
	return e.store.Close()
}

func (e *Engine) handleWS(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = "guest-" + uuid.NewString()
	}

	conn, err := e.wsServer.Upgrade(w, r)
	if err != nil {
		e.logger.Warn("upgrade rejected", "error", err, "remote", r.RemoteAddr)
		return
	}
	if _, err := e.manager.Attach(e.ctx, identity, conn); err != nil {
		e.logger.Error("session attach failed", "error", err, "identity", identity)
		conn.Close()
	}
}

func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": e.manager.Count(),
	})
}
