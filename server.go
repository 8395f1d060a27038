package tbl

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/tbl/internal/gitrepo"
	"pkt.systems/tbl/internal/httpapi"
	"pkt.systems/tbl/internal/netutil"
	"pkt.systems/tbl/internal/runstate"
	"pkt.systems/tbl/internal/tlsutil"
	"pkt.systems/tbl/internal/token"
)

// DefaultShutdownTimeout caps how long in-flight requests may drain after
// the shutdown signal fires.
const DefaultShutdownTimeout = 10 * time.Second

// ErrBindFailed wraps listen errors so callers can distinguish a lost
// probe-versus-bind race from a configuration mistake.
var ErrBindFailed = errors.New("bind failed")

// Server wraps the HTTP server, the run registry, and the bootstrap
// handler for one tbl instance.
type Server struct {
	cfg       Config
	logger    pslog.Logger
	registry  *runstate.Registry
	handler   *httpapi.Handler
	httpSrv   *http.Server
	listener  net.Listener
	tlsCfg    *tls.Config
	authToken string
	host      string
	port      uint16

	mu            sync.Mutex
	stopRequested bool
	started       bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	readyOnce     sync.Once
	readyCh       chan struct{}

	cfgMu sync.Mutex
}

// Option configures server instances.
type Option func(*serverOptions)

type serverOptions struct {
	Logger    pslog.Logger
	AuthToken string
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *serverOptions) {
		o.Logger = l
	}
}

// WithAuthToken pins the session secret instead of generating one. Useful
// for tests; production servers always generate a fresh secret per run.
func WithAuthToken(t string) Option {
	return func(o *serverOptions) {
		o.AuthToken = t
	}
}

// NewServer constructs a tbl server according to cfg. The listen port is
// resolved here by connect-probing upward from the configured base port;
// the actual bind happens in Start and can still lose the race against
// another process, which surfaces as ErrBindFailed.
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

	var tlsCfg *tls.Config
	if cfg.TLSEnabled() {
		var err error
		tlsCfg, err = tlsutil.LoadServerConfig(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, err
		}
	}

	host, basePort, err := netutil.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	port := netutil.FindAvailablePort(host, basePort)
	if port != basePort {
		logger.Info("base port occupied, selected next free port", "base", basePort, "port", port)
	}
	cfg.Addr = net.JoinHostPort(host, fmt.Sprintf("%d", port))

	authToken := o.AuthToken
	if authToken == "" {
		authToken, err = token.New()
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("svc", "server"),
		registry:  runstate.New(cfg.ConfigDir),
		tlsCfg:    tlsCfg,
		authToken: authToken,
		host:      host,
		port:      port,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		readyCh:   make(chan struct{}),
	}

	s.handler = httpapi.New(httpapi.Config{
		Logger:          logger,
		AuthToken:       authToken,
		WebRoot:         cfg.WebRoot(),
		BasicUser:       cfg.BasicUser,
		BasicPass:       cfg.BasicPass,
		Git:             gitrepo.New(cfg.WebRoot(), logger.With("svc", "gitrepo")),
		PersistGitURL:   s.persistGitURL,
		RequestShutdown: s.TriggerShutdown,
	})

	mux := http.NewServeMux()
	s.handler.Register(mux)

	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
		TLSConfig: tlsCfg,
	}
	return s, nil
}

// Start binds the resolved address, announces the instance in the run
// registry, and blocks serving requests until the shutdown signal fires or
// the listener fails. The registry record is written only after a
// successful bind and removed again before Start returns.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: %s (another process may have taken the port between probe and bind): %v",
			ErrBindFailed, s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.started = true
	s.listener = ln
	// Port 0 asks the kernel for an ephemeral port; adopt whatever it gave
	// us before announcing the instance.
	if s.port == 0 {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			s.port = uint16(tcp.Port)
			s.cfgMu.Lock()
			s.cfg.Addr = net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
			s.cfgMu.Unlock()
		}
	}
	s.mu.Unlock()

	rec := runstate.RunRecord{
		PID:       os.Getpid(),
		Port:      s.port,
		AuthToken: s.authToken,
		TLS:       s.tlsCfg != nil,
	}
	if err := s.registry.Save(rec); err != nil {
		s.logger.Warn("failed to write run record, stop command will not find this instance",
			"path", s.registry.Path(), "error", err)
	}
	s.signalReady()
	s.logger.Info("listening", "address", ln.Addr().String(), "tls", s.tlsCfg != nil, "pid", rec.PID)

	go s.watchStop()

	var serveErr error
	if s.tlsCfg != nil {
		serveErr = s.httpSrv.ServeTLS(ln, "", "")
	} else {
		serveErr = s.httpSrv.Serve(ln)
	}

	s.registry.Clear()
	close(s.doneCh)
	if errors.Is(serveErr, http.ErrServerClosed) {
		s.logger.Info("server stopped")
		return nil
	}
	if serveErr != nil {
		return fmt.Errorf("http serve: %w", serveErr)
	}
	return nil
}

// watchStop turns the one-shot stop signal into a graceful HTTP drain. New
// connections stop being accepted; in-flight requests get
// DefaultShutdownTimeout to complete.
func (s *Server) watchStop() {
	select {
	case <-s.stopCh:
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("graceful shutdown failed", "error", err)
			_ = s.httpSrv.Close()
		}
	case <-s.doneCh:
	}
}

// TriggerShutdown consumes the one-shot shutdown signal. The first call
// wins and returns true; every later call is a safe no-op returning false.
func (s *Server) TriggerShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		return false
	}
	s.stopRequested = true
	close(s.stopCh)
	return true
}

// Shutdown requests a graceful stop and waits for the serve loop to
// finish or ctx to expire. Calling it on a server that never started, or
// calling it twice, is harmless.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	s.TriggerShutdown()
	if !started {
		return nil
	}
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully shuts the server down using a background context.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

// WaitReady blocks until the server has bound its listener and written the
// run record, or ctx expires.
func (s *Server) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
	})
}

// Port returns the resolved listen port.
func (s *Server) Port() uint16 {
	return s.port
}

// AuthToken returns the per-run session secret. Callers print it only as
// part of the bootstrap URL, never into logs.
func (s *Server) AuthToken() string {
	return s.authToken
}

// BaseURL returns the loopback URL of this instance.
func (s *Server) BaseURL() string {
	return fmt.Sprintf("%s://127.0.0.1:%d", s.cfg.Scheme(), s.port)
}

// BootstrapURL returns the one-time URL the operator opens to convert the
// session secret into a browser cookie.
func (s *Server) BootstrapURL() string {
	return fmt.Sprintf("%s/bootstrap?token=%s", s.BaseURL(), s.authToken)
}

// Config returns a snapshot of the effective configuration, including the
// back-filled resolved address.
func (s *Server) Config() Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// persistGitURL records a workspace repository chosen through the web
// setup form and writes the canonical config file back.
func (s *Server) persistGitURL(url string) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.GitURL = url
	return SaveConfig(s.cfg)
}
