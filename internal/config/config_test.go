package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaultsWithNoEnvOrFile(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8087", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadReadsEnvOverride(t *testing.T) {
	t.Setenv("WS_LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "debug", cfg.LogLevel)
}
