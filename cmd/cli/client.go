package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathlearn/fedclient/internal/client"
	"github.com/pathlearn/fedclient/internal/telemetry"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// RunClient starts the long-running client: interaction session,
// realtime channel, and the local status server.
func RunClient(configPath string) {
	log := logger.WithComponent("cli")

	a, err := buildApp(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Telemetry.Enabled {
		cleanup, err := telemetry.InitTelemetry(ctx, a.cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Telemetry init failed, continuing without traces")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := cleanup(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()
		}
	}

	if err := a.service.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	statusServer := client.NewStatusServer(a.cfg.Client.StatusAddr, a.service)
	go func() {
		if err := statusServer.Start(); err != nil {
			log.Error().Err(err).Msg("Status server failed")
			cancel()
		}
	}()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-stopChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, stopping client")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Status server shutdown failed")
	}
	if err := a.service.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Service stop failed")
	}
}
