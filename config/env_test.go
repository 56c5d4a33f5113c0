// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVarsUsesSetValue(t *testing.T) {
	t.Setenv("BITCHAT_TEST_FOO", "bar")
	assert.Equal(t, "bar", SubstituteEnvVars("${BITCHAT_TEST_FOO}"))
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "fallback", SubstituteEnvVars("${BITCHAT_TEST_MISSING:fallback}"))
}

func TestSubstituteEnvVarsEmptyDefaultWhenNoneGiven(t *testing.T) {
	assert.Equal(t, "", SubstituteEnvVars("${BITCHAT_TEST_MISSING}"))
}

func TestSubstituteEnvVarsLeavesPlainTextAlone(t *testing.T) {
	assert.Equal(t, "no vars here", SubstituteEnvVars("no vars here"))
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	t.Setenv("BITCHAT_ENV", "")
	assert.Equal(t, "development", GetEnvironment())
}

func TestGetEnvironmentReadsOverride(t *testing.T) {
	t.Setenv("BITCHAT_ENV", "PRODUCTION")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
}
