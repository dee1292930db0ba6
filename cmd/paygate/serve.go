package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paygate/internal/infra/api"
	pg "paygate/internal/infra/db/postgres"
	"paygate/internal/infra/sched"
)

func serveCmd(flags *rootFlags) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags, noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve HTTP only; run reconciliation elsewhere")
	return cmd
}

func runServe(flags *rootFlags, noScheduler bool) error {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	go pg.ReportPoolStats(ctx, a.pool, 15*time.Second, logger)

	// ---- Scheduler ----
	var scheduler *sched.Scheduler
	if !noScheduler {
		scheduler = sched.NewScheduler(cfg.Scheduler.JobTimeout, logger)
		locker := a.jobLocker()
		if err := scheduler.Add(cfg.Scheduler.ReconcileCron, sched.NewPaymentReconciler(a.reconcile, locker, cfg.Scheduler.JobTimeout, logger)); err != nil {
			return err
		}
		if err := scheduler.Add(cfg.Scheduler.AuditCron, sched.NewLedgerAuditor(a.reconcile, locker, cfg.Scheduler.JobTimeout, logger)); err != nil {
			return err
		}
		scheduler.Start()
	}

	// ---- HTTP ----
	srv := api.NewServer(a.payments, a.webhooks, a.commissions, a.rateLimiter(), a.tr, cfg.Server, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	logger.Info().Msg("bye")
	return nil
}

// rateLimiter and jobLocker return untyped nils when Redis is off so the
// consumers' nil checks hold.
func (a *app) rateLimiter() api.Limiter {
	if a.limiter == nil {
		return nil
	}
	return a.limiter
}

func (a *app) jobLocker() sched.Locker {
	if a.locker == nil {
		return nil
	}
	return a.locker
}
