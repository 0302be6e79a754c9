// Package api provides the HTTP surface for FaunaLine: the LINE webhook
// endpoint, the health check and the static image files.
//
// The server wires the store, GenAI, geo and flow modules together and
// owns the background lifecycle sweeps (session expiry, idle user
// locks).
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tsukinowa-lab/FaunaLine/internal/flow"
	"github.com/tsukinowa-lab/FaunaLine/internal/genai"
	"github.com/tsukinowa-lab/FaunaLine/internal/geo"
	"github.com/tsukinowa-lab/FaunaLine/internal/linebot"
	"github.com/tsukinowa-lab/FaunaLine/internal/report"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// Default server configuration.
const (
	DefaultAddr          = ":8080"
	DefaultSweepInterval = time.Hour
	// idle user locks older than this are dropped by the sweep
	lockMaxIdle = time.Hour
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	AddressPrefix string // geofence prefix for accepted locations
	AppBaseURL    string // public base URL for edit/map links
	ImageDir      string // directory served under /images
	SweepInterval time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithAddressPrefix restricts accepted report locations to addresses
// with the given prefix.
func WithAddressPrefix(prefix string) Option {
	return func(o *Opts) {
		o.AddressPrefix = prefix
	}
}

// WithAppBaseURL sets the public base URL used in completion links.
func WithAppBaseURL(u string) Option {
	return func(o *Opts) {
		o.AppBaseURL = u
	}
}

// WithImageDir sets the directory served under /images.
func WithImageDir(dir string) Option {
	return func(o *Opts) {
		o.ImageDir = dir
	}
}

// WithSweepInterval sets the background sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) {
		o.SweepInterval = d
	}
}

// Server handles webhook traffic and owns the background sweeps.
type Server struct {
	bot        *linebot.Client
	dispatcher *flow.Dispatcher
	st         store.Store

	addr          string
	imageDir      string
	sweepInterval time.Duration
}

// Run wires all modules and serves until SIGINT/SIGTERM.
func Run(lineOpts []linebot.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr, SweepInterval: DefaultSweepInterval}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	bot, err := linebot.NewClient(lineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create LINE client: %w", err)
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	dispatcher := flow.NewDispatcher(flow.Deps{
		Sessions:      st,
		GenAI:         ai,
		Uploader:      bot,
		Geocoder:      geo.NewGSIGeocoder(),
		Landmarks:     geo.NoopLandmarkSearcher{},
		Reports:       report.NewService(st, report.WithAppBaseURL(cfg.AppBaseURL)),
		AddressPrefix: cfg.AddressPrefix,
	})

	srv := &Server{
		bot:           bot,
		dispatcher:    dispatcher,
		st:            st,
		addr:          cfg.Addr,
		imageDir:      cfg.ImageDir,
		sweepInterval: cfg.SweepInterval,
	}
	return srv.run()
}

// buildStore selects the backend from the configured DSN: Postgres,
// SQLite, or in-memory when no DSN is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Info("api.buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(storeOpts...), nil
	case store.DetectDSNType(cfg.DSN) == "postgres":
		slog.Info("api.buildStore: using Postgres store")
		return store.NewPostgresStore(storeOpts...)
	default:
		slog.Info("api.buildStore: using SQLite store", "path", cfg.DSN)
		return store.NewSQLiteStore(storeOpts...)
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Post("/webhook", s.webhookHandler)
	if s.imageDir != "" {
		fs := http.StripPrefix("/images/", http.FileServer(http.Dir(s.imageDir)))
		r.Get("/images/*", fs.ServeHTTP)
	}
	return r
}

func (s *Server) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.sweepLoop(ctx)

	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.run: listening", "addr", s.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("Server.run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// sweepLoop periodically removes expired sessions and idle user locks.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.st.DeleteExpired()
			if err != nil {
				slog.Error("Server.sweepLoop: session sweep failed", "error", err)
			} else if expired > 0 {
				slog.Info("Server.sweepLoop: expired sessions removed", "count", expired)
			}
			if removed := s.dispatcher.Locks().Cleanup(lockMaxIdle); removed > 0 {
				slog.Debug("Server.sweepLoop: idle locks removed", "count", removed)
			}
		}
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		slog.Error("Server.healthHandler: failed to write response", "error", err)
	}
}
