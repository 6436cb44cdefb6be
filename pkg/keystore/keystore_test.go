package keystore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	t.Run("round-trips an opaque token", func(t *testing.T) {
		require.NoError(t, SaveToken("opaque-api-token"))

		token, err := LoadToken()
		require.NoError(t, err)
		assert.Equal(t, "opaque-api-token", token)
	})

	t.Run("keystore file is user-only", func(t *testing.T) {
		require.NoError(t, SaveToken("another-token"))

		path, err := GetKeystorePath()
		require.NoError(t, err)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		assert.Error(t, SaveToken(""))
	})
}

func TestLoadTokenMissingKeystore(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := LoadToken()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keystore found")
}

// unsignedJWT builds a JWT with the given exp claim and a fake signature.
// Expiry inspection never verifies signatures, so this is sufficient.
func unsignedJWT(t *testing.T, exp int64) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]interface{}{"exp": exp})
	require.NoError(t, err)
	body := base64.RawURLEncoding.EncodeToString(claims)
	return fmt.Sprintf("%s.%s.%s", header, body, base64.RawURLEncoding.EncodeToString([]byte("sig")))
}

func TestLoadTokenExpiry(t *testing.T) {
	t.Run("expired JWT is rejected", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		require.NoError(t, SaveToken(unsignedJWT(t, time.Now().Add(-time.Hour).Unix())))

		_, err := LoadToken()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("unexpired JWT loads", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		token := unsignedJWT(t, time.Now().Add(time.Hour).Unix())
		require.NoError(t, SaveToken(token))

		loaded, err := LoadToken()
		require.NoError(t, err)
		assert.Equal(t, token, loaded)
	})

	t.Run("corrupt keystore file fails", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		path, err := GetKeystorePath()
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

		_, err = LoadToken()
		assert.Error(t, err)
	})
}
