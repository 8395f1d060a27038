package tbl

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/tbl/api"
)

// TestServer wraps a running tbl.Server with convenient handles for tests.
type TestServer struct {
	Server  *Server
	BaseURL string
	Config  Config

	stop    func(context.Context) error
	startCh chan error
}

type testingWriter struct {
	t  testing.TB
	mu sync.Mutex
	// closed guards against writes after the associated test has finished.
	closed bool
}

func (w *testingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return len(p), nil
	}
	lines := bytes.Split(p, []byte{'\n'})
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		w.t.Helper()
		func(entry string) {
			defer func() {
				if r := recover(); r != nil {
					msg := fmt.Sprint(r)
					if strings.Contains(msg, "Log in goroutine after") {
						return
					}
					if strings.Contains(msg, "Log in goroutine during concurrent Cleanups") {
						return
					}
					panic(r)
				}
			}()
			w.t.Log(entry)
		}(string(line))
	}
	w.mu.Unlock()
	return len(p), nil
}

func (w *testingWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// NewTestingLogger creates a pslog logger that writes through testing.TB.
func NewTestingLogger(t testing.TB, level pslog.Level) pslog.Logger {
	writer := &testingWriter{t: t}
	t.Cleanup(writer.close)
	logger := pslog.NewStructured(writer).LogLevel(level)
	return logger.With("app", "testserver")
}

// TestServerOption adjusts test server construction.
type TestServerOption func(*testServerOptions)

type testServerOptions struct {
	cfg          Config
	cfgSet       bool
	logger       pslog.Logger
	authToken    string
	startTimeout time.Duration
	testTB       testing.TB
	testLogLevel pslog.Level
}

// WithTestConfig replaces the default test configuration entirely.
func WithTestConfig(cfg Config) TestServerOption {
	return func(o *testServerOptions) {
		o.cfg = cfg
		o.cfgSet = true
	}
}

// WithTestLogger overrides the logger used by the server under test.
func WithTestLogger(logger pslog.Logger) TestServerOption {
	return func(o *testServerOptions) {
		o.logger = logger
	}
}

// WithTestAuthToken pins the session secret so tests can authenticate
// without scraping the bootstrap URL.
func WithTestAuthToken(token string) TestServerOption {
	return func(o *testServerOptions) {
		o.authToken = token
	}
}

// WithTestLogLevel sets the verbosity of the implicit testing logger.
func WithTestLogLevel(level pslog.Level) TestServerOption {
	return func(o *testServerOptions) {
		o.testLogLevel = level
	}
}

func withTestTB(t testing.TB) TestServerOption {
	return func(o *testServerOptions) {
		o.testTB = t
	}
}

// NewTestServer starts a server on an ephemeral loopback port and waits
// until it is ready. The caller must call Stop.
func NewTestServer(ctx context.Context, configDir string, opts ...TestServerOption) (*TestServer, error) {
	options := testServerOptions{
		cfg: Config{
			Addr:      "127.0.0.1:0",
			ConfigDir: configDir,
		},
		startTimeout: 5 * time.Second,
		testLogLevel: pslog.DebugLevel,
	}
	for _, opt := range opts {
		opt(&options)
	}
	cfg := options.cfg
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = configDir
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}

	logger := options.logger
	if logger == nil {
		if options.testTB != nil {
			logger = NewTestingLogger(options.testTB, options.testLogLevel)
		} else {
			logger = pslog.NoopLogger()
		}
	}

	srvOpts := []Option{WithLogger(logger)}
	if options.authToken != "" {
		srvOpts = append(srvOpts, WithAuthToken(options.authToken))
	}
	srv, err := NewServer(cfg, srvOpts...)
	if err != nil {
		return nil, err
	}

	startCh := make(chan error, 1)
	go func() {
		startCh <- srv.Start()
	}()

	readyCtx, cancel := context.WithTimeout(ctx, options.startTimeout)
	defer cancel()
	if err := srv.WaitReady(readyCtx); err != nil {
		_ = srv.Close()
		select {
		case startErr := <-startCh:
			if startErr != nil {
				return nil, startErr
			}
		default:
		}
		return nil, fmt.Errorf("test server not ready: %w", err)
	}

	ts := &TestServer{
		Server:  srv,
		BaseURL: srv.BaseURL(),
		Config:  srv.Config(),
		startCh: startCh,
		stop: func(stopCtx context.Context) error {
			if err := srv.Shutdown(stopCtx); err != nil {
				return err
			}
			select {
			case startErr := <-startCh:
				return startErr
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	}
	return ts, nil
}

// StartTestServer is a convenience wrapper that fails the test on error and
// registers cleanup. State lands in a fresh t.TempDir unless the options
// say otherwise.
func StartTestServer(t testing.TB, opts ...TestServerOption) *TestServer {
	t.Helper()
	opts = append([]TestServerOption{withTestTB(t)}, opts...)
	ts, err := NewTestServer(context.Background(), t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(func() {
		if err := ts.Stop(context.Background()); err != nil {
			t.Fatalf("stop test server: %v", err)
		}
	})
	return ts
}

// Stop shuts down the server using the provided context.
func (ts *TestServer) Stop(ctx context.Context) error {
	if ts == nil || ts.stop == nil {
		return nil
	}
	return ts.stop(ctx)
}

// AuthCookie returns a cookie that authenticates against the server under
// test.
func (ts *TestServer) AuthCookie() *http.Cookie {
	return &http.Cookie{Name: api.CookieName, Value: ts.Server.AuthToken()}
}

// URL joins the server base URL with path.
func (ts *TestServer) URL(path string) string {
	return ts.BaseURL + path
}
