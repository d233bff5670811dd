package socket

import (
	"fmt"
	"net/netip"

	"github.com/localrivet/niftynet/protocol"
)

// packetGrouper coalesces heterogeneous blobs into MTU-bounded packets for
// one peer, flushing full packets to the wire as it goes.
type packetGrouper struct {
	addr netip.AddrPort
	conn PacketConn
	mtu  int

	packet protocol.Packet

	sentPackets *uint64
	sentBytes   *uint64
}

func newPacketGrouper(addr netip.AddrPort, conn PacketConn, mtu uint16, sentPackets, sentBytes *uint64) *packetGrouper {
	return &packetGrouper{
		addr:        addr,
		conn:        conn,
		mtu:         int(mtu),
		sentPackets: sentPackets,
		sentBytes:   sentBytes,
	}
}

// spaceLeft returns the size of the largest blob that could be added to the
// current packet.
func (g *packetGrouper) spaceLeft() int {
	return g.packet.SpaceLeft(g.mtu)
}

// push adds a blob to the current packet. It does not check against the
// MTU; callers use spaceLeft or ensureSpace first.
func (g *packetGrouper) push(b protocol.Blob) {
	g.packet.Push(b)
}

// ensureSpace guarantees that the current packet can take a blob of the
// given size, flushing the packet if necessary. It returns ErrMTUTooSmall
// when even an empty packet cannot hold the blob.
func (g *packetGrouper) ensureSpace(spaceNeeded int) error {
	if g.spaceLeft() < spaceNeeded {
		if err := g.createSpace(); err != nil {
			return err
		}
	}

	if g.spaceLeft() < spaceNeeded {
		return ErrMTUTooSmall
	}

	return nil
}

// createSpace flushes the current packet to make room. It returns
// ErrMTUTooSmall when the packet is already empty, meaning no amount of
// flushing can create the requested space.
func (g *packetGrouper) createSpace() error {
	if g.packet.BlobCount() == 0 {
		return ErrMTUTooSmall
	}
	return g.flush()
}

// sendRemaining flushes a final non-empty packet.
func (g *packetGrouper) sendRemaining() error {
	if g.packet.BlobCount() == 0 {
		return nil
	}
	return g.flush()
}

func (g *packetGrouper) flush() error {
	n, err := g.conn.SendTo(g.packet.Serialize(), g.addr)
	if err != nil {
		return fmt.Errorf("failed to send packet: %w", err)
	}
	g.packet = protocol.Packet{}

	*g.sentPackets++
	*g.sentBytes += uint64(n)

	return nil
}
