package socket

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrConnectionExists is returned when opening a connection to an address
// that already has one.
var ErrConnectionExists = errors.New("connection already exists")

// ErrNoConnection is returned when an operation names an address without a
// connection.
var ErrNoConnection = errors.New("no connection for address")

// ErrMTUTooSmall is reported when the configured MTU cannot hold a single
// packet with the smallest required blob. The offending tick aborts for
// that connection; the socket survives.
var ErrMTUTooSmall = errors.New("configured mtu too small to fit a blob")

// ErrSocketClosed is returned when an operation is attempted on a closed
// socket.
var ErrSocketClosed = errors.New("socket closed")

// MalformedPacketError is reported when a datagram from a peer fails to
// decode, or a fragment contradicts its message's total size. The packet is
// discarded; the connection is kept, the peer may recover.
type MalformedPacketError struct {
	Addr netip.AddrPort
	Err  error
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet from %v: %v", e.Addr, e.Err)
}

func (e *MalformedPacketError) Unwrap() error {
	return e.Err
}
