package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/pathlearn/fedclient/pkg/logger"
)

type Keystore struct {
	AuthToken string `json:"auth_token"`
	CreatedAt int64  `json:"created_at"`
}

func GetKeystorePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	keystoreDir := filepath.Join(homeDir, ".fedclient")
	if err := os.MkdirAll(keystoreDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create keystore directory: %w", err)
	}

	return filepath.Join(keystoreDir, "keystore.json"), nil
}

func SaveToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	keystorePath, err := GetKeystorePath()
	if err != nil {
		return err
	}

	keystore := Keystore{
		AuthToken: token,
		CreatedAt: time.Now().Unix(),
	}

	log := logger.WithComponent("keystore")
	log.Info().
		Str("path", keystorePath).
		Str("token_preview", token[:min(len(token), 10)]+"...").
		Msg("Saving token to keystore")

	data, err := json.MarshalIndent(keystore, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	if err := os.WriteFile(keystorePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keystore file: %w", err)
	}

	return nil
}

// LoadToken returns the stored bearer token. Tokens carrying a JWT expiry
// claim in the past are rejected; the client only inspects claims, it
// never verifies the signature (that is the server's job).
func LoadToken() (string, error) {
	keystorePath, err := GetKeystorePath()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(keystorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no keystore found at %s - please authenticate first", keystorePath)
		}
		return "", fmt.Errorf("failed to read keystore: %w", err)
	}

	var keystore Keystore
	if err := json.Unmarshal(data, &keystore); err != nil {
		return "", fmt.Errorf("failed to parse keystore: %w", err)
	}

	if keystore.AuthToken == "" {
		return "", fmt.Errorf("invalid token found in keystore")
	}

	if expired, err := tokenExpired(keystore.AuthToken); err == nil && expired {
		return "", fmt.Errorf("token has expired - please re-authenticate")
	}

	return keystore.AuthToken, nil
}

// tokenExpired inspects the token's exp claim without verifying the
// signature. Opaque (non-JWT) tokens report an error and are accepted
// as-is by the caller.
func tokenExpired(token string) (bool, error) {
	claims := jwt.MapClaims{}
	parser := &jwt.Parser{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, err
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return false, nil
	}
	return time.Now().Unix() >= int64(exp), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
