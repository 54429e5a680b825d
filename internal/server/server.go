// Package server assembles the development API, the engine and the UI
// routes, and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/erpui/internal/activity"
	"github.com/matthewbaird/erpui/internal/config"
	"github.com/matthewbaird/erpui/internal/dashboard"
	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/handler"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/notify"
	"github.com/matthewbaird/erpui/internal/permission"
	"github.com/matthewbaird/erpui/internal/seed"
	"github.com/matthewbaird/erpui/internal/table"
	"github.com/matthewbaird/erpui/internal/ui"
	"github.com/matthewbaird/erpui/internal/ui/session"
)

const (
	busBuffer         = 256
	sessionSweep      = time.Minute
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server holds every long-lived component.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	loader   *meta.Loader
	registry *meta.Registry
	store    handler.Store
	bus      *notify.Bus
	cache    *data.Cache
	sessions *session.Manager
	handler  http.Handler
	closers  []func() error
}

// New builds the server from cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}
	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	cfg := s.cfg

	loader, err := meta.NewLoader()
	if err != nil {
		return err
	}
	schemas, err := loader.LoadAll(cfg.SchemaDir)
	if err != nil {
		return fmt.Errorf("loading schemas: %w", err)
	}
	s.loader = loader
	s.registry = meta.NewRegistry()
	if err := s.registry.Replace(schemas); err != nil {
		return err
	}
	s.log.Info("schemas loaded", zap.Strings("names", s.registry.Names()))

	var trail activity.Store
	if cfg.MemoryStore() {
		s.store = handler.NewMemoryStore()
		trail = activity.NewMemoryStore()
	} else {
		db, err := handler.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, db.Close)
		s.store = db
		if trail, err = activity.NewSQLStore(ctx, db.DB()); err != nil {
			return err
		}
	}
	if cfg.Seed {
		if err := seed.SeedHR(ctx, s.store, s.log); err != nil {
			return err
		}
	}
	api := handler.NewAPI(handler.Config{
		Registry:    s.registry,
		Store:       s.store,
		Collections: cfg.Collections,
		Activity:    trail,
		Log:         s.log.Named("api"),
	})

	client, err := data.NewClient(data.ClientConfig{
		BaseURL: cfg.BaseURL(),
		Timeout: cfg.GetRequestTimeout(),
		Actor:   cfg.Actor,
	}, s.log.Named("client"))
	if err != nil {
		return err
	}
	s.bus = notify.NewBus(busBuffer, s.log.Named("notify"))
	s.bus.Subscribe("log", notify.NewLogConsumer(s.log.Named("events")))
	s.cache = data.NewCache(client, s.bus, s.log.Named("cache"))

	var persister table.Persister
	if cfg.StateDir != "" {
		p, err := table.OpenBadger(cfg.StateDir)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, p.Close)
		persister = p
	}

	s.sessions = session.NewManager(cfg.GetSessionMaxAge(), cfg.GetSessionIdleTimeout())
	uiHandler := ui.NewHandler(ui.Config{
		Registry:    s.registry,
		Cache:       s.cache,
		Records:     client,
		Tables:      table.NewStore(persister, s.log.Named("table")),
		Bus:         s.bus,
		Dashboards:  dashboard.NewLoader(client, s.log.Named("dashboard"), cfg.Dashboards...),
		Permissions: permission.NewMatrix(cfg.Permissions...),
		Sessions:    s.sessions,
		Async:       cfg.Async,
		Log:         s.log.Named("ui"),
	})

	r := chi.NewRouter()
	r.Use(handler.Recovery(s.log), handler.Logging(s.log))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/api", api.Routes())
	r.Mount("/ui", uiHandler.Routes())
	s.handler = r
	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Registry returns the schema registry.
func (s *Server) Registry() *meta.Registry { return s.registry }

// Start runs the background workers until ctx is done: the notify bus, the
// session sweeper and, with a schema dir, the schema watcher.
func (s *Server) Start(ctx context.Context) *errgroup.Group {
	s.bus.Start(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.sessions.Run(gctx, sessionSweep)
		return nil
	})
	if s.cfg.SchemaDir != "" {
		g.Go(func() error {
			return meta.Watch(gctx, s.cfg.SchemaDir, s.loader, s.registry, s.log.Named("schemas"))
		})
	}
	return g
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		// Requests in flight at shutdown finish on a live context; Shutdown
		// bounds how long they get.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	workers := s.Start(ctx)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("server listening", zap.String("addr", ln.Addr().String()))

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		<-errc
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if werr := workers.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

// Run listens on the configured port and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	s, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Close stops the cache and bus and closes the stores.
func (s *Server) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
