package socket

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"
)

// PacketConn is the non-blocking datagram endpoint the engine drives. It is
// satisfied by the adapter Bind wraps around a *net.UDPConn; tests and
// simulators substitute in-memory implementations.
type PacketConn interface {
	// ReceiveFrom reads one queued datagram into p. ok is false when no
	// datagram is waiting; err is reserved for real transport failures.
	ReceiveFrom(p []byte) (n int, addr netip.AddrPort, ok bool, err error)

	// SendTo writes one datagram to addr.
	SendTo(p []byte, addr netip.AddrPort) (int, error)

	// LocalAddr returns the endpoint's bound address.
	LocalAddr() netip.AddrPort

	// Close releases the endpoint.
	Close() error
}

// udpPacketConn adapts a *net.UDPConn to the engine's non-blocking receive
// contract using an already-expired read deadline.
type udpPacketConn struct {
	conn *net.UDPConn
}

// pollDeadline is any instant in the past; reads against it return
// immediately with os.ErrDeadlineExceeded when nothing is queued.
var pollDeadline = time.Unix(1, 0)

// NewUDPPacketConn wraps an existing UDP socket for use with the engine.
func NewUDPPacketConn(conn *net.UDPConn) PacketConn {
	return &udpPacketConn{conn: conn}
}

func (c *udpPacketConn) ReceiveFrom(p []byte) (int, netip.AddrPort, bool, error) {
	if err := c.conn.SetReadDeadline(pollDeadline); err != nil {
		return 0, netip.AddrPort{}, false, fmt.Errorf("failed to arm read poll: %w", err)
	}

	n, addr, err := c.conn.ReadFromUDPAddrPort(p)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, netip.AddrPort{}, false, nil
		}
		return 0, netip.AddrPort{}, false, err
	}
	return n, addr, true, nil
}

func (c *udpPacketConn) SendTo(p []byte, addr netip.AddrPort) (int, error) {
	return c.conn.WriteToUDPAddrPort(p, addr)
}

func (c *udpPacketConn) LocalAddr() netip.AddrPort {
	if addr, ok := c.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.AddrPort()
	}
	return netip.AddrPort{}
}

func (c *udpPacketConn) Close() error {
	return c.conn.Close()
}

// ignorableReceiveError reports whether a receive error is ICMP-induced
// noise on a connectionless socket rather than a real transport failure.
func ignorableReceiveError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}
