package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MEMNOTES_SERVER_SESSION_SECRET", secret)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:9464", cfg.Server.MetricsAddr)
	assert.False(t, cfg.Server.PublicMetrics)
	assert.Equal(t, 7*24*time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, "users/data", cfg.Storage.DataDir)
	assert.Equal(t, "sqlite", cfg.Accounts.Driver)
	assert.Equal(t, "users/users.db", cfg.Accounts.DSN)
	assert.Equal(t, "mem_notes.db", cfg.Bank.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "memnotes.yaml", `
server:
  addr: ":9000"
  session_secret: "from-yaml-secret-value"
  session_ttl: 2h
  allowed_origins: ["https://a.example"]
  metrics_addr: ":9100"
  public_metrics: true
storage:
  data_dir: /yaml/data
log:
  level: debug
`)
	t.Setenv("MEMNOTES_STORAGE_DATA_DIR", "/env/data")
	t.Setenv("MEMNOTES_LOG_FORMAT", "console")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8080", "")
	flags.String("data-dir", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":7000"}))

	cfg, err := Load(Options{
		ConfigFile: path,
		Flags:      flags,
		FlagKeys:   map[string]string{"addr": "server.addr", "data-dir": "storage.data_dir"},
	})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "flag beats yaml")
	assert.Equal(t, "/env/data", cfg.Storage.DataDir, "env beats yaml, unset flag ignored")
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, []string{"https://a.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, ":9100", cfg.Server.MetricsAddr)
	assert.True(t, cfg.Server.PublicMetrics)
}

func TestLoadEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "MEMNOTES_SERVER_SESSION_SECRET="+secret+"\nMEMNOTES_BANK_PATH=/srv/bank.db\n")
	t.Cleanup(func() {
		os.Unsetenv("MEMNOTES_SERVER_SESSION_SECRET")
		os.Unsetenv("MEMNOTES_BANK_PATH")
	})

	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "/srv/bank.db", cfg.Bank.Path)

	t.Run("missing env file is fine", func(t *testing.T) {
		_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "nope.env")})
		assert.NoError(t, err)
	})
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "short secret", env: map[string]string{"MEMNOTES_SERVER_SESSION_SECRET": "short"}},
		{name: "unknown driver", env: map[string]string{
			"MEMNOTES_SERVER_SESSION_SECRET": secret,
			"MEMNOTES_ACCOUNTS_DRIVER":       "mysql",
			"MEMNOTES_ACCOUNTS_DSN":          "x",
		}},
		{name: "postgres needs a dsn", env: map[string]string{
			"MEMNOTES_SERVER_SESSION_SECRET": secret,
			"MEMNOTES_ACCOUNTS_DRIVER":       "postgres",
		}},
		{name: "bad log level", env: map[string]string{
			"MEMNOTES_SERVER_SESSION_SECRET": secret,
			"MEMNOTES_LOG_LEVEL":             "loud",
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(Options{Serve: true})
			assert.Error(t, err)
		})
	}
}

func TestLoadSecretOnlyRequiredToServe(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.SessionSecret)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("MEMNOTES_SERVER_SESSION_SECRET", secret)
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.session_secret", envKey("MEMNOTES_SERVER_SESSION_SECRET"))
	assert.Equal(t, "storage.data_dir", envKey("MEMNOTES_STORAGE_DATA_DIR"))
	assert.Equal(t, "debug", envKey("MEMNOTES_DEBUG"))
}
