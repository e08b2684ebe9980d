// Copyright (c) Microsoft. All rights reserved.

package rpc_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/shadai-group/shadai/rpc"
	"github.com/shadai-group/shadai/shadai"
)

var configVars = []string{
	"SHADAI_API_KEY", "SHADAI_BASE_URL", "SHADAI_TIMEOUT", "SHADAI_LOG_LEVEL",
	"SHADAI_RATE_LIMIT", "SHADAI_RATE_BURST", "SHADAI_TOKEN_SCOPE",
}

// clearConfigEnv unsets every configuration variable for the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SHADAI_API_KEY", "sk-test")

	cfg, err := rpc.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "http://localhost", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.RateLimit)
	assert.Len(t, cfg.Options(), 2)
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SHADAI_API_KEY", "sk-test")
	t.Setenv("SHADAI_BASE_URL", "https://api.example.com")
	t.Setenv("SHADAI_TIMEOUT", "5s")
	t.Setenv("SHADAI_LOG_LEVEL", "debug")
	t.Setenv("SHADAI_RATE_LIMIT", "2.5")
	t.Setenv("SHADAI_RATE_BURST", "4")

	cfg, err := rpc.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 4, cfg.RateBurst)
	assert.Len(t, cfg.Options(), 3)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{"missing key", map[string]string{}, "SHADAI_API_KEY"},
		{"negative timeout", map[string]string{"SHADAI_API_KEY": "k", "SHADAI_TIMEOUT": "-1s"}, "SHADAI_TIMEOUT"},
		{"negative rate", map[string]string{"SHADAI_API_KEY": "k", "SHADAI_RATE_LIMIT": "-1"}, "SHADAI_RATE_LIMIT"},
		{"bad level", map[string]string{"SHADAI_API_KEY": "k", "SHADAI_LOG_LEVEL": "loud"}, "SHADAI_LOG_LEVEL"},
		{"unparseable timeout", map[string]string{"SHADAI_API_KEY": "k", "SHADAI_TIMEOUT": "soon"}, "environment"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := rpc.LoadConfigFromEnv()
			assert.ErrorIs(t, err, shadai.ErrConfiguration)
			var e *shadai.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tc.key, e.Context["config_key"])
		})
	}
}

func TestLoadConfigFromEnv_TokenScopeWithoutKey(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SHADAI_TOKEN_SCOPE", "api://shadai/.default")

	cfg, err := rpc.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "api://shadai/.default", cfg.TokenScope)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHADAI_API_KEY=from-dotenv\nSHADAI_TIMEOUT=12s\n"), 0o600))

	cfg, err := rpc.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
	assert.Equal(t, 12*time.Second, cfg.Timeout)
}

func TestLoadConfig_MissingDotEnvIsIgnored(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SHADAI_API_KEY", "sk-env")

	cfg, err := rpc.LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.APIKey)
}

func TestNewFromConfig(t *testing.T) {
	_, err := rpc.NewFromConfig(nil)
	assert.ErrorIs(t, err, shadai.ErrConfiguration)

	_, err = rpc.NewFromConfig(&rpc.Config{LogLevel: "info"})
	assert.ErrorIs(t, err, shadai.ErrConfiguration)

	client, err := rpc.NewFromConfig(&rpc.Config{APIKey: "k", BaseURL: "http://localhost", LogLevel: "info"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
