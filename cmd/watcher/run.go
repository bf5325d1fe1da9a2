package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wallet-copy-watcher/internal/api"
	"wallet-copy-watcher/internal/config"
	"wallet-copy-watcher/internal/decision"
	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/watch"
)

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target, err := domain.ParseTargetAddress(cfg.Target)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	budget := decision.DefaultBudget
	if resolver := a.budgets(); resolver != nil && cfg.UserPubkey != "" {
		budget, err = resolver.Budget(ctx, cfg.UserPubkey)
		if err != nil {
			return fmt.Errorf("resolve budget: %w", err)
		}
		if budget <= 0 {
			return watch.ErrNoTasksRemaining
		}
	}

	session, err := a.buildSession(uuid.NewString(), target, cfg.UserPubkey, budget)
	if err != nil {
		return err
	}

	go func() {
		if err := serveMetrics(ctx, cfg.MetricsAddr, logger); err != nil {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()

	logger.Info("watch start",
		zap.String("session_id", session.ID()),
		zap.String("target", target.String()),
		zap.String("user_pubkey", cfg.UserPubkey),
		zap.Int("budget", session.Counter().Budget()),
		zap.String("engine", cfg.Engine),
		zap.String("trigger", cfg.Trigger))

	res, err := session.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("watch done",
		zap.String("session_id", res.SessionID),
		zap.Int("triggers", res.Triggers),
		zap.Int("notifications", res.Notifications),
		zap.Int("candidates", res.Candidates),
		zap.String("reason", res.Reason))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	manager := watch.NewManager(watch.ManagerConfig{
		Build:   a.buildSession,
		Budgets: a.budgets(),
		Logger:  logger,
	})

	srvCfg := api.Config{Addr: cfg.ListenAddr, Sessions: manager, Logger: logger}
	if a.users != nil {
		srvCfg.Agent = a.users
	}
	srv, err := api.NewServer(srvCfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })
	g.Go(func() error {
		<-gctx.Done()
		manager.Shutdown()
		logger.Info("sessions stopped")
		return nil
	})

	logger.Info("serve start",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.String("engine", cfg.Engine),
		zap.String("trigger", cfg.Trigger),
		zap.Bool("agent_program", a.users != nil))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("metrics listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
