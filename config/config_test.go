package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "willow-api", cfg.AppName)
	assert.Equal(t, 3004, cfg.Port)
	assert.Equal(t, "import-events", cfg.KafkaEventsTopic)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
	assert.Equal(t, 10*time.Minute, cfg.LockTTL())
	assert.Equal(t, 0.85, cfg.PersonMatchThreshold)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WILLOW_TEST_UNUSED=1\nPORT=8088\nLOCK_TTL_SECONDS=30\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("LOCK_TTL_SECONDS")
		os.Unsetenv("WILLOW_TEST_UNUSED")
	})

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.LockTTL())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "log level", key: "LOG_LEVEL", val: "chatty"},
		{name: "threshold", key: "PERSON_MATCH_THRESHOLD", val: "1.5"},
		{name: "signature without key", key: "PACKAGE_REQUIRE_SIGNATURE", val: "true"},
		{name: "protocol", key: "OTEL_EXPORTER_OTLP_PROTOCOL", val: "carrier-pigeon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
