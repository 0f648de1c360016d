package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/memnotes/internal/accounts"
	"github.com/conorfennell/memnotes/internal/metrics"
	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/storage"
	"github.com/conorfennell/memnotes/internal/testset"
	"github.com/conorfennell/memnotes/internal/web"
)

const sessionPurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Long: `Run the web server.

Examples:
  # Serve on the default address
  MEMNOTES_SERVER_SESSION_SECRET=... memnotes serve

  # Serve on another port with per-account stores under /var/lib/memnotes
  memnotes serve --addr :9000 --data-dir /var/lib/memnotes`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("data-dir", "", "directory holding one note store per account")
	serveCmd.Flags().String("metrics-addr", "", "listen address of the metrics endpoint (default 127.0.0.1:9464)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	accts, err := accounts.Open(cfg.Accounts.Driver, cfg.Accounts.DSN)
	if err != nil {
		return err
	}
	defer accts.Close()

	stores, err := storage.NewRegistry(cfg.Storage.DataDir)
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(accts, session.Options{
		Secret: cfg.Server.SessionSecret,
		TTL:    cfg.Server.SessionTTL,
		Secure: cfg.Server.CookieSecure,
	}, logger.Named("session"))
	if err != nil {
		return err
	}

	m := metrics.New()
	srv, err := web.NewServer(web.Deps{
		Accounts:       accts,
		Stores:         stores,
		Sessions:       sessions,
		TestSet:        testset.NewImporter(cfg.Bank.Path, logger, m),
		Metrics:        m,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PublicMetrics:  cfg.Server.PublicMetrics,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go purgeSessions(ctx, accts, logger)

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	return runServers(ctx, logger, cfg.Server.ShutdownTimeout, servers...)
}

// runServers serves until ctx is cancelled or one server fails, then shuts
// every server down within timeout.
func runServers(ctx context.Context, logger *zap.Logger, timeout time.Duration, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, hs := range servers {
		g.Go(func() error {
			logger.Info("Starting server", zap.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var errs []error
		for _, hs := range servers {
			errs = append(errs, hs.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// purgeSessions deletes expired sessions until ctx is cancelled.
func purgeSessions(ctx context.Context, accts *accounts.Store, logger *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := accts.PurgeExpiredSessions(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("Failed to purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("Purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}
