package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, StoreModeRemote, c.StoreMode)
	assert.Equal(t, 300*time.Millisecond, c.DeliveredDelay)
	assert.Equal(t, 800*time.Millisecond, c.ReadDelay)
	assert.Equal(t, "01111973405", c.VerifierPhone)
	assert.Equal(t, []string{"911", "01111973405"}, c.OperatorPhones())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	origEnv := envFile
	t.Cleanup(func() { envFile = origEnv })
	envFile = filepath.Join(t.TempDir(), "missing.env")

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "127.0.0.1:50051", cfg.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestParseEnv(t *testing.T) {
	origEnv := envFile
	t.Cleanup(func() { envFile = origEnv })

	envFile = filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GEMINI_API_KEY=from-file\nHAWACHAT_STORE_MODE=local\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("GEMINI_API_KEY")
		_ = os.Unsetenv("HAWACHAT_STORE_MODE")
	})
	t.Setenv("HAWACHAT_READ_DELAY", "1s")

	c := &Config{}
	c.LoadDefaults()
	parseEnv(c)

	assert.Equal(t, "from-file", c.GeminiAPIKey)
	assert.Equal(t, StoreModeLocal, c.StoreMode)
	assert.Equal(t, time.Second, c.ReadDelay)
	assert.Len(t, c.Operators, 2, "operators are not read from the environment")
}
