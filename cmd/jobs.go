package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-ledger/app/service"
	"github.com/vibast-solutions/ms-go-ledger/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile stale provider-backed transactions",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run status notification related commands",
}

var notifyDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch pending terminal-status notifications to caller services",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"notify_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.NotifyDispatchInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunNotifyDispatchBatch(ctx)
			},
		)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run sweep-related commands",
}

var sweepPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Mark long-running pending transactions as failed",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"sweep_pending",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.SweepPendingInterval },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunSweepPendingBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(sweepCmd)
	notifyCmd.AddCommand(notifyDispatchCmd)
	sweepCmd.AddCommand(sweepPendingCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	cfg, svcs, cleanup := mustCreateServices()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), svcs.Payments, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(svcs.Payments, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	paymentService *service.PaymentService,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(paymentService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(paymentService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
