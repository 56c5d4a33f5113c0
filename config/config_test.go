// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
}

func TestLoadFromBytesAppliesDefaultsToUnsetFields(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
environment: staging
dedup:
  hash_functions: 4
`))
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 4, cfg.Dedup.HashFunctions)
	assert.Equal(t, Default().Dedup.BitSize, cfg.Dedup.BitSize)
	assert.Equal(t, Default().Delivery.MaxRetries, cfg.Delivery.MaxRetries)
}

func TestLoadFromBytesRejectsInvalidMode(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
fragmentation:
  mode: gzip
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragmentation.mode")
}

func TestLoadFromBytesRejectsInvalidLoggingLevel(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
logging:
  level: verbose
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestLoadFromBytesRejectsBadBackoffMultiplier(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
delivery:
  backoff_multiplier: 1.0
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff_multiplier")
}

func TestLoadFromBytesRejectsOutOfRangeDegradedFloor(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
transport:
  degraded_floor: 1.5
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degraded_floor")
}

func TestLoadFromBytesSubstitutesEnvVars(t *testing.T) {
	t.Setenv("BITCHAT_TEST_METRICS_ADDR", ":7777")
	cfg, err := LoadFromBytes([]byte(`
metrics:
  addr: "${BITCHAT_TEST_METRICS_ADDR}"
`))
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Metrics.Addr)
}

func TestLoadFromBytesUsesDefaultWhenEnvVarUnset(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
metrics:
  addr: "${BITCHAT_TEST_UNSET_VAR:9999}"
`))
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Metrics.Addr)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/bitchat.yaml")
	require.Error(t, err)
}
