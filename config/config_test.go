package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.Call.PhaseTimeout)
	assert.Equal(t, 5*time.Second, cfg.Notifier.Timeout)
	assert.NotEmpty(t, cfg.ICE.STUNServers)
	assert.Empty(t, cfg.ICE.TURNServers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CALL_PHASE_TIMEOUT_MS", "500")
	t.Setenv("ALLOWED_ORIGINS", "https://kiosk.example.com")
	t.Setenv("ICE_TURN_SERVERS", "turn:relay.example.com:3478")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Call.PhaseTimeout)
	assert.Equal(t, []string{"https://kiosk.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"turn:relay.example.com:3478"}, cfg.ICE.TURNServers)
}

func TestLoadIgnoresBadDuration(t *testing.T) {
	t.Setenv("CALL_PHASE_TIMEOUT_MS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 15*time.Second, cfg.Call.PhaseTimeout)
}
