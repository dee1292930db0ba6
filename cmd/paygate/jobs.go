package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"paygate/internal/infra/sched"
)

func reconcileCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Verify stale pending payments with their providers once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			job := sched.NewPaymentReconciler(a.reconcile, a.jobLocker(), cfg.Scheduler.JobTimeout, logger)
			return job.RunOnce(ctx)
		},
	}
}

func auditCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report subscriptions whose balance disagrees with their token transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			drifts, err := a.reconcile.AuditLedger(ctx)
			if err != nil {
				return err
			}
			if len(drifts) == 0 {
				fmt.Println("ledger consistent")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SUBSCRIPTION\tUSER\tSERVICE\tBALANCE\tLEDGER\tDELTA")
			for _, d := range drifts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", d.SubscriptionID, d.UserID, d.ServiceType, d.TokenBalance, d.LedgerSum, d.Delta())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("%d subscription(s) drifted", len(drifts))
		},
	}
}
