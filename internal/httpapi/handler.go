// Package httpapi wires tbl's HTTP surface: the unauthenticated root and
// bootstrap handshake, the privileged JSON endpoints, the web setup form,
// and the static mount for the cloned checkout.
//
// The server is stateless with respect to sessions. Authorization is an
// equality check of the cookie-carried secret against the one in-memory
// session secret; there is no session table to manage or leak.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"pkt.systems/tbl/api"
	"pkt.systems/tbl/internal/svcfields"
	"pkt.systems/tbl/internal/token"
)

// GitCollaborator is the narrow surface of the external git tool used by
// the setup flow.
type GitCollaborator interface {
	EnsureTool() error
	Ensure(ctx context.Context, url string) error
}

// Config wires a Handler.
type Config struct {
	Logger pslog.Logger
	// AuthToken is the per-run session secret privileged requests must
	// present.
	AuthToken string
	// WebRoot is the checkout directory served under /web/.
	WebRoot string
	// BasicUser/BasicPass optionally add an HTTP basic auth gate checked
	// before the cookie. Both gates must pass.
	BasicUser string
	BasicPass string
	// Git performs the clone for the setup form. May be nil when the
	// launcher runs without a git collaborator (tests).
	Git GitCollaborator
	// PersistGitURL records a repository chosen through the setup form.
	PersistGitURL func(url string) error
	// RequestShutdown consumes the server's one-shot stop signal. The bool
	// result only distinguishes first use from no-op repeats; the endpoint
	// succeeds either way.
	RequestShutdown func() bool
}

// Handler serves tbl's HTTP endpoints.
type Handler struct {
	cfg    Config
	logger pslog.Logger
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = pslog.NoopLogger()
	}
	return &Handler{cfg: cfg, logger: cfg.Logger}
}

// Register installs all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/", h.wrap("index", h.handleIndex))
	mux.Handle(api.BootstrapPath, h.wrap("bootstrap", h.handleBootstrap))
	mux.Handle(api.SetupPath, h.wrap("setup", h.handleSetup))
	mux.Handle(api.PingPath, h.wrap("ping", h.handlePing))
	mux.Handle(api.ShutdownPath, h.wrap("shutdown", h.handleShutdown))
	mux.Handle(api.ScriptPath, h.wrap("script", h.handleScript))
	mux.Handle(api.WebMount, http.StripPrefix(api.WebMount,
		http.FileServer(http.Dir(h.cfg.WebRoot))))
}

func (h *Handler) wrap(operation string, fn http.HandlerFunc) http.Handler {
	sys := svcfields.Subsystem("http", operation)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := svcfields.WithSubsystem(h.logger, sys).With(
			"req_id", xid.New().String(),
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := pslog.ContextWithLogger(r.Context(), logger)
		fn(w, r.WithContext(ctx))
		logger.Debug("request served", "duration", time.Since(start))
	})
}

// handleIndex gates the root on content, not on the secret: with a served
// checkout present it redirects there, otherwise it renders the first-run
// setup form. Nothing sensitive exists before a workspace does.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	index := filepath.Join(h.cfg.WebRoot, "index.html")
	if _, err := os.Stat(index); err == nil {
		http.Redirect(w, r, api.WebMount, http.StatusTemporaryRedirect)
		return
	}
	writeHTML(w, http.StatusOK, setupPageHTML)
}

// handleBootstrap converts the one-time URL token into a browser cookie.
// The response page sets the cookie client-side and redirects to the root.
func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	presented := r.URL.Query().Get("token")
	if presented == "" {
		http.Error(w, "missing token in query", http.StatusBadRequest)
		return
	}
	if !token.Equal(presented, h.cfg.AuthToken) {
		pslog.LoggerFromContext(r.Context()).Warn("bootstrap token mismatch")
		http.Error(w, "invalid bootstrap token", http.StatusForbidden)
		return
	}
	renderBootstrapPage(w, presented)
}

// handleSetup accepts the first-run form, drives the git collaborator, and
// persists the chosen repository. Collaborator failures render an HTML
// error page with remediation text instead of crashing the process.
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := pslog.LoggerFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	url := strings.TrimSpace(r.FormValue("git_url"))
	if url == "" {
		renderErrorPage(w, http.StatusBadRequest, "Missing git URL",
			"Enter the URL of the repository to serve.")
		return
	}
	if h.cfg.Git == nil {
		renderErrorPage(w, http.StatusInternalServerError, "Setup unavailable",
			"This instance runs without a git collaborator.")
		return
	}
	if err := h.cfg.Git.EnsureTool(); err != nil {
		logger.Error("git unavailable", "error", err)
		renderErrorPage(w, http.StatusInternalServerError, "Git is required", err.Error())
		return
	}
	if err := h.cfg.Git.Ensure(r.Context(), url); err != nil {
		logger.Error("clone failed", "error", err)
		renderErrorPage(w, http.StatusInternalServerError, "Failed to clone repository", err.Error())
		return
	}
	if h.cfg.PersistGitURL != nil {
		if err := h.cfg.PersistGitURL(url); err != nil {
			logger.Warn("failed to persist config", "error", err)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handlePing answers the authenticated health check.
func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, api.PingResponse{Status: api.StatusOK})
}

// handleShutdown signals the serve loop to stop after replying. A repeat
// request while shutdown is already in flight gets the same
// acknowledgement; the one-shot signal makes the second trigger a no-op.
func (h *Handler) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorize(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, api.ShutdownResponse{Status: api.StatusShuttingDown})
	if h.cfg.RequestShutdown != nil {
		first := h.cfg.RequestShutdown()
		pslog.LoggerFromContext(r.Context()).Info("shutdown requested", "first", first)
	}
}

func (h *Handler) handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(helperScriptJS))
}

// authorize enforces both privileged gates: static basic auth first when
// configured, then the cookie-carried session secret. Rejections never
// echo the presented secret.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.cfg.BasicUser != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || !constEqual(user, h.cfg.BasicUser) || !constEqual(pass, h.cfg.BasicPass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tbl"`)
			http.Error(w, "basic auth required", http.StatusUnauthorized)
			return false
		}
	}
	cookie, err := r.Cookie(api.CookieName)
	if err != nil || !token.Equal(cookie.Value, h.cfg.AuthToken) {
		http.Error(w, "missing or invalid auth cookie", http.StatusUnauthorized)
		return false
	}
	return true
}

func constEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
