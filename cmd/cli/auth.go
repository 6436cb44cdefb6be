package cli

import (
	"fmt"

	"github.com/pathlearn/fedclient/pkg/keystore"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// RunAuth stores the API token in the local keystore.
func RunAuth(token string) {
	log := logger.WithComponent("cli")

	if token == "" {
		log.Fatal().Msg("Token is required")
	}

	if err := keystore.SaveToken(token); err != nil {
		log.Fatal().Err(err).Msg("Failed to save token")
	}

	path, err := keystore.GetKeystorePath()
	if err != nil {
		path = "keystore"
	}
	fmt.Printf("Token saved to %s\n", path)
}
