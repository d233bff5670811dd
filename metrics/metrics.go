// Package metrics exposes per-connection transport counters and a
// Prometheus collector over them.
package metrics

import (
	"net/netip"
	"time"
)

// ConnectionMetrics is a snapshot of one connection's counters.
type ConnectionMetrics struct {
	// SentPackets and SentBytes count datagrams flushed to the wire,
	// handshakes included.
	SentPackets uint64
	SentBytes   uint64

	// RTT is the averaged round trip time; HasRTT is false until the
	// first heartbeat echo arrives.
	RTT    time.Duration
	HasRTT bool

	// ReliableMessages and UnreliableMessages count messages queued for
	// sending, by reliability class.
	ReliableMessages   uint64
	UnreliableMessages uint64
}

// Source is anything that can be scraped for connection metrics. It is
// satisfied by *socket.Socket.
type Source interface {
	// ID identifies the socket instance.
	ID() string

	// Addresses lists the peers with live connections.
	Addresses() []netip.AddrPort

	// ConnectionMetrics returns the counters for one peer, ok=false if
	// the connection is gone.
	ConnectionMetrics(addr netip.AddrPort) (ConnectionMetrics, bool)
}
