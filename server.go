package countd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"

	"pkt.systems/countd/internal/clock"
	"pkt.systems/countd/internal/counter"
	"pkt.systems/countd/internal/httpapi"
	"pkt.systems/countd/internal/identity"
	"pkt.systems/countd/internal/metrics"
	"pkt.systems/countd/internal/notify"
	"pkt.systems/countd/internal/store"
	storelogging "pkt.systems/countd/internal/store/logging"
	storeretry "pkt.systems/countd/internal/store/retry"
)

// Server wraps the HTTP server, storage backend, notifier and supporting
// components.
type Server struct {
	cfg       Config
	logger    pslog.Logger
	backend   store.Backend
	notifier  notify.Notifier
	svc       *counter.Service
	handler   *httpapi.Handler
	httpSrv   *http.Server
	metricsIn *metrics.Metrics

	mu          sync.Mutex
	listener    net.Listener
	metricsSrv  *http.Server
	metricsLn   net.Listener
	shutdown    bool
	ownsBackend bool
	ownsNotify  bool

	readyOnce sync.Once
	readyCh   chan struct{}
}

// Option configures server instances.
type Option func(*serverOptions)

type serverOptions struct {
	Logger   pslog.Logger
	Backend  store.Backend
	Notifier notify.Notifier
	Clock    clock.Clock
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *serverOptions) { o.Logger = l }
}

// WithBackend injects a pre-built backend (useful for tests).
func WithBackend(b store.Backend) Option {
	return func(o *serverOptions) { o.Backend = b }
}

// WithNotifier injects a pre-built notifier (useful for tests).
func WithNotifier(n notify.Notifier) Option {
	return func(o *serverOptions) { o.Notifier = n }
}

// WithClock injects a custom clock implementation.
func WithClock(c clock.Clock) Option {
	return func(o *serverOptions) { o.Clock = c }
}

// NewServer constructs a countd server according to cfg.
// Example:
//
//	cfg := countd.Config{Store: "mem://", Listen: ":9350", AuthMode: "header"}
//	srv, err := countd.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Start()
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	serverClock := o.Clock
	if serverClock == nil {
		serverClock = clock.Real{}
	}

	mode, err := identity.ParseMode(cfg.AuthMode)
	if err != nil {
		return nil, err
	}
	secret, err := cfg.ResolveJWTSecret()
	if err != nil {
		return nil, err
	}
	extractor, err := identity.NewExtractor(mode, secret)
	if err != nil {
		return nil, err
	}

	ins := metrics.New()

	backend := o.Backend
	ownsBackend := false
	if backend == nil {
		backend, err = openBackend(cfg)
		if err != nil {
			return nil, err
		}
		ownsBackend = true
	}
	storageLogger := logger.With("sys", "store")
	backend = storelogging.Wrap(backend, storageLogger)
	backend = storeretry.Wrap(backend, storageLogger, serverClock, storeretry.Config{
		MaxAttempts: cfg.StorageRetryMaxAttempts,
		BaseDelay:   cfg.StorageRetryBaseDelay,
		MaxDelay:    cfg.StorageRetryMaxDelay,
		Multiplier:  cfg.StorageRetryMultiplier,
	})

	srv := &Server{
		cfg:         cfg,
		logger:      logger.With("sys", "server"),
		backend:     backend,
		metricsIn:   ins,
		ownsBackend: ownsBackend,
		readyCh:     make(chan struct{}),
	}

	notifier := o.Notifier
	if notifier == nil {
		notifier, err = openNotifier(context.Background(), cfg, logger.With("sys", "notify"), func(err error) {
			if srv.svc != nil {
				srv.svc.NotifyFailed(err)
			}
		})
		if err != nil {
			if ownsBackend {
				_ = backend.Close()
			}
			return nil, err
		}
		srv.ownsNotify = true
	}
	srv.notifier = notifier

	svc, err := counter.New(counter.Config{
		Backend:  backend,
		Notifier: notifier,
		Metrics:  ins,
		Logger:   logger.With("sys", "counter"),
		Clock:    serverClock,
	})
	if err != nil {
		if ownsBackend {
			_ = backend.Close()
		}
		return nil, err
	}
	srv.svc = svc

	handler := httpapi.New(httpapi.Config{
		Service:      svc,
		Identity:     extractor,
		Metrics:      ins,
		Logger:       logger,
		Ready:        srv.Ready,
		MaxBodyBytes: cfg.JSONMaxBytes,
	})
	srv.handler = handler

	mux := http.NewServeMux()
	handler.Register(mux)
	srv.httpSrv = &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}
	return srv, nil
}

// Handler returns the underlying HTTP handler so countd can be mounted
// inside an existing mux when embedding the server into another program.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Ready reports whether the server has started listening.
func (s *Server) Ready() bool {
	select {
	case <-s.readyCh:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the server accepts connections or ctx expires.
func (s *Server) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listen address once Start has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Listen
	}
	return s.listener.Addr().String()
}

// Start begins serving requests and blocks until the server stops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		listener.Close()
		return http.ErrServerClosed
	}
	s.listener = listener
	s.mu.Unlock()

	if err := s.startMetrics(); err != nil {
		listener.Close()
		return err
	}

	s.logger.Info("server started",
		"listen", listener.Addr().String(),
		"store", s.cfg.Store,
		"queue", s.cfg.Queue,
		"auth_mode", s.cfg.AuthMode,
	)
	s.readyOnce.Do(func() { close(s.readyCh) })
	return s.httpSrv.Serve(listener)
}

func (s *Server) startMetrics() error {
	listen := s.cfg.MetricsListen
	if listen == "" {
		return nil
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", listen, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.metricsIn.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	s.mu.Lock()
	s.metricsSrv = srv
	s.metricsLn = ln
	s.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
	s.logger.Info("metrics enabled", "listen", ln.Addr().String())
	return nil
}

// Shutdown gracefully stops the server, the metrics listener, the notifier
// and the backend.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	metricsSrv := s.metricsSrv
	s.mu.Unlock()

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	var errs []error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	if s.ownsNotify && s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier close: %w", err))
		}
	}
	if s.ownsBackend {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend close: %w", err))
		}
	}
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// ShutdownWithTimeout is a convenience wrapper around Shutdown.
func (s *Server) ShutdownWithTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Shutdown(ctx)
}
