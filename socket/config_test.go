package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, uint64(0), cfg.ProtocolID)
	assert.Equal(t, uint16(1500), cfg.MTU)
	assert.Equal(t, 500*time.Millisecond, cfg.HeartbeatInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.HandshakeInterval)
	assert.Equal(t, 16, cfg.RTTMemory)
	assert.Equal(t, 1.25, cfg.ReliableResendThreshold)
	assert.Equal(t, 4.0, cfg.UnreliableDropThreshold)
	assert.Equal(t, 8.0, cfg.ReliableBlacklistMemory)
	assert.Equal(t, 10*time.Second, cfg.TimeoutDelay)
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]interface{}{
		"protocol_id":        42,
		"mtu":                1200,
		"heartbeat_interval": "250ms",
		"timeout_delay":      "30s",
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(42), cfg.ProtocolID)
	assert.Equal(t, uint16(1200), cfg.MTU)
	assert.Equal(t, 250*time.Millisecond, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.TimeoutDelay)

	// unset keys keep their defaults
	assert.Equal(t, 16, cfg.RTTMemory)
	assert.Equal(t, 100*time.Millisecond, cfg.HandshakeInterval)
}

func TestConfigFromMapRejectsBadValues(t *testing.T) {
	_, err := ConfigFromMap(map[string]interface{}{
		"heartbeat_interval": "not a duration",
	})
	assert.Error(t, err)

	_, err = ConfigFromMap(map[string]interface{}{
		"mtu": "very big",
	})
	assert.Error(t, err)
}

func TestConfigFromMapEmpty(t *testing.T) {
	cfg, err := ConfigFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
