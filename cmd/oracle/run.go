package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-oracle/internal/gate"
	"auction-oracle/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the periodic auction scan, gate pass cleanup and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			settler, err := a.tracker()
			if err != nil {
				return err
			}
			accessGate, err := a.gate()
			if err != nil {
				return err
			}

			group, ctx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return settler.Run(ctx)
			})
			group.Go(func() error {
				return sweepGatePasses(ctx, accessGate, cleanupInterval(cfg))
			})
			if cfg.MetricsAddress != "" {
				group.Go(func() error {
					return serveMetrics(ctx, cfg.MetricsAddress, a.registry)
				})
			}

			logger.Info("oracle started",
				zap.String("network", cfg.Network),
				zap.String("auction", cfg.AuctionContractAddress),
				zap.Duration("scan interval", cfg.ScanInterval),
			)
			err = group.Wait()
			logger.Info("oracle stopped")
			return err
		},
	}
}

func sweepGatePasses(ctx context.Context, accessGate *gate.Gate, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := accessGate.CleanupGatePasses(ctx); err != nil {
				logger.Warn("gate pass cleanup failed", zap.Error(err))
			}
		}
	}
}

func serveMetrics(ctx context.Context, address string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving prometheus metrics", zap.String("address", address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
