// Package socket implements the niftynet transport engine: a single UDP
// endpoint hosting any number of reliable-optional datagram connections.
//
// The engine is single-threaded and cooperative. All state is owned by the
// Socket and mutated only during Update, which the caller drives with a
// monotonic time value. See the package examples for the basic open, send
// and update loop.
package socket

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	// DefaultMTU is the maximum serialized packet size. Messages larger
	// than this fragment, smaller messages are grouped together up to
	// this size.
	DefaultMTU = 1500

	// DefaultHeartbeatInterval is the period between heartbeats.
	// Heartbeats keep the connection alive and estimate round trip time.
	DefaultHeartbeatInterval = 500 * time.Millisecond

	// DefaultHandshakeInterval is the period between handshake retries
	// while a connection is still pending. Handshakes might be dropped;
	// this is how long to wait before sending another.
	DefaultHandshakeInterval = 100 * time.Millisecond

	// DefaultRTTMemory is the number of round trip time samples averaged.
	DefaultRTTMemory = 16

	// DefaultReliableResendThreshold is the multiple of the round trip
	// time to wait before resending unacknowledged reliable fragments.
	// Values close to or below one resend before the acknowledgement had
	// a fair chance to arrive and waste bandwidth.
	DefaultReliableResendThreshold = 1.25

	// DefaultUnreliableDropThreshold is the multiple of the round trip
	// time to wait before discarding an incomplete unreliable reassembly.
	DefaultUnreliableDropThreshold = 4.0

	// DefaultReliableBlacklistMemory is the multiple of the round trip
	// time to remember a completed reliable message id. Long enough that
	// in-flight duplicate fragments drain, short enough that the 15-bit
	// id space wraps safely under normal load.
	DefaultReliableBlacklistMemory = 8.0

	// DefaultTimeoutDelay is how long to wait since the last received
	// packet before dropping a connection.
	DefaultTimeoutDelay = 10 * time.Second
)

// Config holds the tunables of a Socket. Use DefaultConfig for the
// recommended defaults and adjust from there.
type Config struct {
	// ProtocolID rejects peers whose handshake carries a different value.
	ProtocolID uint64 `json:"protocol_id"`

	// MTU is the maximum serialized packet size in bytes.
	MTU uint16 `json:"mtu"`

	// HeartbeatInterval is the period between heartbeats.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// HandshakeInterval is the period between handshake retries while
	// pending.
	HandshakeInterval time.Duration `json:"handshake_interval"`

	// RTTMemory is the number of round trip time samples averaged.
	RTTMemory int `json:"rtt_memory"`

	// ReliableResendThreshold is the multiple of the round trip time to
	// wait before resending an unacknowledged reliable fragment.
	ReliableResendThreshold float64 `json:"reliable_resend_threshold"`

	// UnreliableDropThreshold is the multiple of the round trip time to
	// wait before discarding an incomplete unreliable reassembly.
	UnreliableDropThreshold float64 `json:"unreliable_drop_threshold"`

	// ReliableBlacklistMemory is the multiple of the round trip time to
	// remember a completed reliable message id.
	ReliableBlacklistMemory float64 `json:"reliable_message_blacklist_memory"`

	// TimeoutDelay is how long to wait since the last received packet
	// before dropping the connection.
	TimeoutDelay time.Duration `json:"timeout_delay"`
}

// DefaultConfig returns a Config carrying the documented defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolID:              0,
		MTU:                     DefaultMTU,
		HeartbeatInterval:       DefaultHeartbeatInterval,
		HandshakeInterval:       DefaultHandshakeInterval,
		RTTMemory:               DefaultRTTMemory,
		ReliableResendThreshold: DefaultReliableResendThreshold,
		UnreliableDropThreshold: DefaultUnreliableDropThreshold,
		ReliableBlacklistMemory: DefaultReliableBlacklistMemory,
		TimeoutDelay:            DefaultTimeoutDelay,
	}
}

// ConfigFromMap decodes a configuration map, as loaded from a JSON or TOML
// config file, into a Config. Unset keys keep their defaults. Duration
// fields accept Go duration strings ("500ms") or nanosecond integers.
func ConfigFromMap(m map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()

	decoderConfig := &mapstructure.DecoderConfig{
		Result:     &cfg,
		TagName:    "json",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return Config{}, fmt.Errorf("internal error creating config decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}
