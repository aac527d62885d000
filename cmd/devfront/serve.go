package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kongwutw/devfront/internal/browser"
	"github.com/kongwutw/devfront/internal/certs"
	"github.com/kongwutw/devfront/internal/config"
	"github.com/kongwutw/devfront/internal/health"
	"github.com/kongwutw/devfront/internal/pipeline"
	"github.com/kongwutw/devfront/internal/server"
	"github.com/kongwutw/devfront/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	Port int
	Open bool
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start", "dev"},
		Short:   "Start the development server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogger(flags.LogFormat, flags.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg, err := resolveConfig(flags.ConfigFile, func(raw *config.Raw) {
				if cmd.Flags().Changed("port") {
					raw.Server.Port = config.Port(sf.Port)
				}
				if cmd.Flags().Changed("open") {
					raw.Server.Open = sf.Open
				}
			})
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().IntVarP(&sf.Port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&sf.Open, "open", false, "open the browser on start (overrides server.open)")
	return cmd
}

// run serves cfg until ctx is cancelled or the listener fails.
func run(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr(), err)
	}
	return serve(ctx, cfg, logger, ln)
}

func serve(ctx context.Context, cfg *config.Resolved, logger *slog.Logger, ln net.Listener) error {
	defer ln.Close()
	slog.Info("Starting devfront", "version", Version, "root", cfg.Root)

	source := newSource(cfg)
	assets, err := pipeline.New(source, cfg.Plugins,
		pipeline.WithCacheSize(cfg.CacheSize),
		pipeline.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build asset pipeline: %w", err)
	}
	if plugins := assets.Plugins(); len(plugins) > 0 {
		slog.Info("Plugins loaded", "plugins", plugins)
	}

	registry := websocket.NewRegistry(logger)
	bridge := websocket.NewBridge(registry, websocket.WithLogger(logger))
	handler := server.New(cfg, assets, server.WithLogger(logger), server.WithBridge(bridge))

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	scheme := "http"
	if cfg.Server.TLS != nil {
		tlsConfig, err := certs.NewTLSConfig(cfg.Server.TLS, cfg.Server.Host)
		if err != nil {
			return fmt.Errorf("failed to create TLS config: %w", err)
		}
		if cfg.Server.TLS.CertFile == "" {
			slog.Info("Using a generated self-signed certificate", "host", cfg.Server.Host)
		}
		srv.TLSConfig = tlsConfig
		scheme = "https"
	}

	url := fmt.Sprintf("%s://%s%s", scheme, displayAddr(cfg.Server.Host, ln.Addr()), cfg.Server.BasePath)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.CacheSize > 0 {
		inv := pipeline.NewInvalidator(source.Dirs(), assets.Invalidate, logger)
		g.Go(func() error {
			if err := inv.Run(gctx); err != nil && gctx.Err() == nil {
				slog.Warn("file watcher stopped, cached transforms may be stale", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		var err error
		slog.Info("Listening", "url", url)
		if srv.TLSConfig != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		registry.CloseAll(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("Server stopped")
		return nil
	})

	if len(cfg.Proxy) > 0 {
		go warnUnreachable(gctx, cfg.Proxy, logger)
	}

	if cfg.Server.OpenBrowserOnStart {
		if err := browser.Open(url); err != nil {
			slog.Warn("could not open browser", "url", url, "error", err)
		}
	}

	return g.Wait()
}

// warnUnreachable logs proxy upstreams that do not answer at startup.
// Requests to them still go through and get 502 until they come up.
func warnUnreachable(ctx context.Context, rules []config.ProxyRule, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	checker := health.NewChecker(&http.Client{Timeout: probeTimeout}, logger)
	for _, res := range checker.CheckAll(ctx, rules) {
		if res.Status == health.StatusUnreachable {
			logger.Warn("proxy upstream not reachable yet",
				"prefix", res.Prefix,
				"target", res.Target,
				"error", res.Snippet)
		}
	}
}

// displayAddr is the host:port users should browse to. Wildcard hosts are
// shown as localhost.
func displayAddr(host string, addr net.Addr) string {
	port := ""
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = fmt.Sprint(tcp.Port)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
