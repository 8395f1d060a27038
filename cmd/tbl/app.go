package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"
	"pkt.systems/tbl"
	"pkt.systems/tbl/internal/browser"
	"pkt.systems/tbl/internal/daemon"
	"pkt.systems/tbl/internal/gitrepo"
	"pkt.systems/tbl/internal/runstate"
	"pkt.systems/tbl/internal/svcfields"
	"pkt.systems/tbl/internal/version"
)

// spawnWait caps how long the foreground parent waits for the detached
// child to announce itself in the run registry before giving up on
// printing the bootstrap URL.
const spawnWait = 5 * time.Second

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("TBL_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "tbl")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg tbl.Config

	cmd := &cobra.Command{
		Use:           "tbl",
		Short:         "tbl is a tiny self-bootstrapping web launcher: it clones a git repo with a web UI and serves it locally behind a per-run auth token",
		SilenceErrors: true,
		Example: `
  # First run: prompts for a git repo through the web setup form
  tbl

  # Launch a specific repo, remembered for next time
  tbl --git-url https://github.com/you/your-web.git

  # Environment works too (precedence: flags > env > config file)
  TBL_GIT_URL=https://github.com/you/your-web.git tbl

  # Stay in the foreground (no background re-exec)
  tbl --foreground

  # Stop a running instance
  tbl stop
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := baseLogger
			out := cmd.OutOrStdout()

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			bindConfig(&cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
				return fmt.Errorf("create config dir %s: %w", cfg.ConfigDir, err)
			}

			if level, ok := pslog.ParseLevel(strings.TrimSpace(viper.GetString("log-level"))); ok {
				logger = logger.LogLevel(level)
			}
			cliLogger := svcfields.WithSubsystem(logger, "cli.root")
			if configFile != "" {
				cliLogger.Debug("loaded config file", "path", configFile)
			}

			// A live instance wins over everything: hand the operator a
			// fresh bootstrap URL for it and leave it alone.
			registry := runstate.New(cfg.ConfigDir)
			if rec, ok := registry.Load(); ok {
				if runstate.Alive(rec) {
					announceRunning(out, rec, cfg.OpenBrowser)
					return nil
				}
				cliLogger.Debug("clearing stale run record", "pid", rec.PID, "port", rec.Port)
				registry.Clear()
			}

			if !cfg.Foreground && !daemon.Daemonized() {
				return launchDetached(cmd, cfg, registry)
			}
			return runServer(cmd.Context(), cfg, logger, out)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to config file (defaults to "+tbl.DefaultConfigFileName+" in the tbl config dir; yaml/json/toml accepted)")

	flags := cmd.Flags()
	flags.String("git-url", "", "git repository holding the web UI to clone and serve")
	flags.StringP("addr", "a", tbl.DefaultAddr, "bind address; the port is the base for availability scanning")
	flags.String("tls-cert", "", "path to PEM TLS certificate (requires --tls-key)")
	flags.String("tls-key", "", "path to PEM TLS private key (requires --tls-cert)")
	flags.String("basic-user", "", "optional HTTP basic auth user for privileged endpoints")
	flags.String("basic-pass", "", "optional HTTP basic auth password for privileged endpoints")
	flags.Bool("no-browser", false, "do not open the operator's browser on the bootstrap URL")
	flags.BoolP("foreground", "f", false, "run in the foreground instead of re-executing as a background process")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		flag := flags.Lookup(name)
		if flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("TBL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{
		"config",
		"git-url", "addr", "tls-cert", "tls-key", "basic-user", "basic-pass",
		"no-browser", "foreground", "log-level",
	} {
		bindFlag(name)
	}

	cmd.AddCommand(newStopCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// launchDetached is the parent half of the two-phase boot: spawn the
// detached child, then watch the run registry until the child announces
// itself so the operator still gets the bootstrap URL on their terminal.
func launchDetached(cmd *cobra.Command, cfg tbl.Config, registry *runstate.Registry) error {
	out := cmd.OutOrStdout()
	printBanner(out)

	pid, err := daemon.Spawn(cfg.ConfigDir)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(spawnWait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		rec, ok := registry.Load()
		if !ok || rec.PID != pid {
			continue
		}
		if runstate.Alive(rec) {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Starting tbl server...")
			fmt.Fprintln(out, "  ───────────────────────────────────────")
			fmt.Fprintf(out, "  Address: %s://127.0.0.1:%d\n", schemeFor(rec.TLS), rec.Port)
			fmt.Fprintf(out, "  TLS:     %s\n", enabledStr(rec.TLS))
			fmt.Fprintf(out, "  PID:     %d\n", rec.PID)
			fmt.Fprintln(out)
			announceBootstrap(out, rec, cfg.OpenBrowser)
			return nil
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  tbl started in the background (PID %d) but has not announced itself yet.\n", pid)
	fmt.Fprintf(out, "  Run 'tbl status' to find the bootstrap URL, or check %s for errors.\n",
		filepath.Join(cfg.ConfigDir, daemon.LogFileName))
	fmt.Fprintln(out)
	return nil
}

// runServer is the child half (and the whole story with --foreground):
// prepare the workspace, start the server, serve until stopped.
func runServer(ctx context.Context, cfg tbl.Config, logger pslog.Logger, out io.Writer) error {
	cliLogger := svcfields.WithSubsystem(logger, "cli.root")

	if cfg.GitURL != "" {
		repo := gitrepo.New(cfg.WebRoot(), logger.With("svc", "gitrepo"))
		if err := repo.EnsureTool(); err != nil {
			return err
		}
		if err := repo.Ensure(ctx, cfg.GitURL); err != nil {
			return fmt.Errorf("ensure repo %s: %w", cfg.GitURL, err)
		}
	}

	server, err := tbl.NewServer(cfg, tbl.WithLogger(logger))
	if err != nil {
		return err
	}
	// Remember the effective configuration, resolved port included.
	if err := tbl.SaveConfig(server.Config()); err != nil {
		cliLogger.Warn("failed to save config", "error", err)
	}

	if cfg.Foreground {
		printBanner(out)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Starting tbl server...")
		fmt.Fprintln(out, "  ───────────────────────────────────────")
		fmt.Fprintf(out, "  Address: %s\n", server.BaseURL())
		fmt.Fprintf(out, "  TLS:     %s\n", enabledStr(cfg.TLSEnabled()))
		fmt.Fprintf(out, "  PID:     %d\n", os.Getpid())
		fmt.Fprintln(out)
		printURLBox(out, server.BootstrapURL())
		if cfg.OpenBrowser {
			fmt.Fprintln(out, "\n  Opening browser...")
			if err := browser.Open(server.BootstrapURL()); err != nil {
				fmt.Fprintf(out, "  Failed to open browser: %v\n", err)
				fmt.Fprintln(out, "  Open the URL above manually to authenticate.")
			}
		} else {
			fmt.Fprintln(out, "\n  Open the URL above to authenticate.")
		}
		fmt.Fprintln(out)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tbl.DefaultShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			cliLogger.Error("shutdown failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tbl.DefaultShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// announceRunning reports an already-live instance and re-issues its
// bootstrap URL instead of starting a second server.
func announceRunning(out io.Writer, rec runstate.RunRecord, openBrowser bool) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  tbl is already running")
	fmt.Fprintln(out, "  ───────────────────────────────────────")
	fmt.Fprintf(out, "  PID:    %d\n", rec.PID)
	fmt.Fprintf(out, "  Port:   %d\n", rec.Port)
	fmt.Fprintf(out, "  TLS:    %s\n", enabledStr(rec.TLS))
	fmt.Fprintln(out)
	announceBootstrap(out, rec, openBrowser)
}

func announceBootstrap(out io.Writer, rec runstate.RunRecord, openBrowser bool) {
	url := bootstrapURL(rec)
	printURLBox(out, url)
	if openBrowser {
		fmt.Fprintln(out, "\n  Opening browser...")
		if err := browser.Open(url); err != nil {
			fmt.Fprintf(out, "  Failed to open browser: %v\n", err)
			fmt.Fprintln(out, "  Open the URL above manually to authenticate.")
		}
	} else {
		fmt.Fprintln(out, "\n  Open the URL above to authenticate.")
	}
	fmt.Fprintln(out)
}

func bootstrapURL(rec runstate.RunRecord) string {
	return fmt.Sprintf("%s://127.0.0.1:%d/bootstrap?token=%s",
		schemeFor(rec.TLS), rec.Port, rec.AuthToken)
}

func schemeFor(tls bool) string {
	if tls {
		return "https"
	}
	return "http"
}

func enabledStr(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func printBanner(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ╭─────────────────────────────────────────╮")
	fmt.Fprintln(out, "  │                                         │")
	fmt.Fprintf(out, "  │   tbl %-33s │\n", version.Current())
	fmt.Fprintln(out, "  │   Tiny self-bootstrapping web launcher  │")
	fmt.Fprintln(out, "  │                                         │")
	fmt.Fprintln(out, "  ╰─────────────────────────────────────────╯")
}

func printURLBox(out io.Writer, url string) {
	const padding = 4
	width := utf8.RuneCountInString(url) + padding*2
	topBottom := strings.Repeat("─", width)
	spaces := strings.Repeat(" ", padding)
	fmt.Fprintf(out, "  ╭%s╮\n", topBottom)
	fmt.Fprintf(out, "  │%s%s%s│\n", spaces, url, spaces)
	fmt.Fprintf(out, "  ╰%s╯\n", topBottom)
}

func bindConfig(cfg *tbl.Config) {
	cfg.GitURL = strings.TrimSpace(viper.GetString("git-url"))
	cfg.Addr = viper.GetString("addr")
	cfg.TLSCert = viper.GetString("tls-cert")
	cfg.TLSKey = viper.GetString("tls-key")
	cfg.BasicUser = viper.GetString("basic-user")
	cfg.BasicPass = viper.GetString("basic-pass")
	cfg.OpenBrowser = !viper.GetBool("no-browser")
	cfg.Foreground = viper.GetBool("foreground")
}

// loadConfigFile resolves and reads the persisted configuration into
// viper. An explicit --config path must exist; the implicit per-user file
// is optional.
func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := tbl.DefaultConfigDir(); err == nil {
			cfgPath = tbl.FindConfigFile(dir)
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
