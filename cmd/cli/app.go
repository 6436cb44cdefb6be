package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pathlearn/fedclient/internal/client"
	"github.com/pathlearn/fedclient/internal/config"
	"github.com/pathlearn/fedclient/internal/storage/localstore"
	"github.com/pathlearn/fedclient/pkg/keystore"
)

const defaultConfigPath = "config/config.yaml"

// app bundles everything a command needs: config, the persistent store,
// and the wired service. Close releases the store.
type app struct {
	cfg     *config.Config
	store   *localstore.Store
	service *client.Service
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close local store: %v\n", err)
		}
	}
}

// buildApp wires the full client stack from configuration. The keystore
// supplies the auth token lazily so commands work before authentication
// for local-only operations.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := cfg.Client.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".fedclient")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := localstore.Open(filepath.Join(dataDir, "fedclient.db"))
	if err != nil {
		return nil, err
	}

	api := client.NewAPIClient(cfg.Server.URL, keystore.LoadToken)
	federated := client.NewFederatedClient(api, store, cfg.Client)
	channel := client.NewRealtimeChannel(cfg.Server.SocketURL, keystore.LoadToken, cfg.Server.Websocket)

	return &app{
		cfg:     cfg,
		store:   store,
		service: client.NewService(federated, channel),
	}, nil
}
