package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nodesale/internal/api"
	"nodesale/internal/event"
	"nodesale/internal/issuance"
	"nodesale/internal/logger"
	"nodesale/internal/oracle"
	"nodesale/internal/payment"
	"nodesale/internal/sale"
	"nodesale/internal/storage"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sale API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
}

func serveRun(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	store, err := storage.NewSqliteStorage(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus := event.NewBus(reg, logger.Named("event"))
	defer bus.Stop()
	bus.SubscribeFunc(event.TierCompletedEventType, func(evt event.Event) {
		logger.Info("tier sold out", zap.String("phase", evt.Phase), zap.String("event", evt.ID))
	})

	prices := oracle.NewAdapter(
		oracle.NewHermesSource(cfg.OracleEndpoint, cfg.OracleTimeout),
		oracle.WithLogger(logger.Named("oracle")),
	)
	ledger := payment.NewLedger(store, logger.Named("payment"))
	registry := issuance.NewRegistry(store, logger.Named("issuance"))
	engine := sale.New(store, prices, ledger, registry,
		sale.WithLogger(logger.Named("sale")),
		sale.WithEventBus(bus),
		sale.WithNativeDecimals(cfg.NativeDecimals),
		sale.WithMaxPriceAge(cfg.NativeMaxPriceAge, cfg.TokenMaxPriceAge),
		sale.WithRegisterer(reg),
	)

	server := &http.Server{
		Addr: cfg.ListenAddress,
		Handler: api.New(api.Config{
			Engine:   engine,
			Registry: registry,
			Ledger:   ledger,
			Gatherer: reg,
			Logger:   logger.Named("api"),
		}).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err = <-errCh:
		logger.Error("server stopped", zap.Error(err))
	case <-waitForInterrupt():
		logger.Info("interrupt received, shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("graceful shutdown failed", zap.Error(shutdownErr))
	}
	return err
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
