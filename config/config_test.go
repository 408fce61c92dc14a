package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("SESSION_MAX_IDLE", "30m")
	assert.Equal(t, 30*time.Minute, getEnvAsDuration("SESSION_MAX_IDLE", 2*time.Hour))

	t.Setenv("SESSION_MAX_IDLE", "soon")
	assert.Equal(t, 2*time.Hour, getEnvAsDuration("SESSION_MAX_IDLE", 2*time.Hour))

	t.Setenv("SESSION_MAX_IDLE", "")
	assert.Equal(t, 2*time.Hour, getEnvAsDuration("SESSION_MAX_IDLE", 2*time.Hour))
}
