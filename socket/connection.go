package socket

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/localrivet/niftynet/interval"
	"github.com/localrivet/niftynet/metrics"
	"github.com/localrivet/niftynet/protocol"
)

// blacklistEntry remembers a recently completed reliable message id so that
// retransmitted fragments of it are not reassembled into a second delivery.
type blacklistEntry struct {
	time time.Duration
	id   uint16
}

// connection is the per-peer protocol engine.
type connection struct {
	addr netip.AddrPort

	// handshakePending is true on the opening party until the first
	// heartbeat from the peer proves the connection is established.
	// handshakeSent and lastHandshake track the retry schedule.
	handshakePending bool
	handshakeSent    bool
	lastHandshake    time.Duration

	lastHeartbeat time.Duration
	// heartbeatResponses queues echoes owed to the peer.
	heartbeatResponses []protocol.HeartbeatResponse
	rttSamples         []time.Duration
	// cachedRTT is recalculated when rttSamples changes.
	cachedRTT     time.Duration
	hasRTT        bool
	lastKeepAlive time.Duration

	nextFragmentationID uint16
	sendMessages        []*sendMessage

	receiveMessages []*receiveMessage
	// acknowledgements queues acks to send.
	acknowledgements  []protocol.Acknowledgement
	reliableBlacklist []blacklistEntry

	// dropConnection set means the connection keeps functioning for one
	// more tick, ships its Disconnect blob, and is then removed.
	dropConnection bool
	// justConnected set means a NewConnection event still has to fire.
	justConnected bool

	sentPackets        uint64
	sentBytes          uint64
	reliableMessages   uint64
	unreliableMessages uint64
}

// newConnection creates a connection to addr at some time. openingParty is
// true when this socket initiates the connection, meaning it has to
// handshake and wait before knowing the connection is established.
func newConnection(now time.Duration, addr netip.AddrPort, openingParty bool) *connection {
	return &connection{
		addr:             addr,
		handshakePending: openingParty,
		lastKeepAlive:    now,
		justConnected:    !openingParty,
	}
}

// send queues a message for delivery.
func (c *connection) send(reliable bool, data []byte) {
	fragmentationID := c.nextFragmentationID
	c.nextFragmentationID = (c.nextFragmentationID + 1) & protocol.MaxFragmentationID

	c.sendMessages = append(c.sendMessages, newSendMessage(reliable, fragmentationID, data))

	if reliable {
		c.reliableMessages++
	} else {
		c.unreliableMessages++
	}
}

// update runs one tick: timeout detection, the handshake gate, fragment
// carving with retransmission pacing, heartbeats, heartbeat responses,
// acknowledgements, the disconnect blob, and receive-side pruning.
func (c *connection) update(now time.Duration, cfg *Config, conn PacketConn) error {
	if c.lastKeepAlive+cfg.TimeoutDelay < now {
		c.dropConnection = true
	}

	// pause normal traffic until the handshake completes
	if c.handshakePending {
		if !c.handshakeSent || c.lastHandshake+cfg.HandshakeInterval <= now {
			c.handshakeSent = true
			c.lastHandshake = now

			payload := protocol.Handshake{ProtocolID: cfg.ProtocolID}.Serialize()
			n, err := conn.SendTo(payload, c.addr)
			if err != nil {
				return fmt.Errorf("failed to send handshake: %w", err)
			}

			c.sentPackets++
			c.sentBytes += uint64(n)
		}

		return nil
	}

	grouper := newPacketGrouper(c.addr, conn, cfg.MTU, &c.sentPackets, &c.sentBytes)

	resendDelay, hasResendDelay := c.resendDelay(cfg)

	// carve message fragments
	for _, message := range c.sendMessages {
		if message.reliable && message.sent {
			if !hasResendDelay {
				// sent once but no rtt measured yet, hold the
				// next wave until a sample arrives
				continue
			}
			if message.lastSent+resendDelay > now {
				continue
			}
		}

		scratch := message.deliveredIntervals()

		for {
			frag, err := message.carveFragment(scratch, grouper.spaceLeft())
			if err == errMessageDone {
				break
			}
			if err == errNeedSpace {
				if err := grouper.createSpace(); err != nil {
					return err
				}
				continue
			}
			grouper.push(frag)
		}

		if message.reliable {
			// the real delivered set only advances on acks;
			// the scratch is discarded with this wave
			message.sent = true
			message.lastSent = now
		} else {
			// one pass is assumed to have reached the wire
			message.commitDelivered(scratch)
		}
	}
	c.sendMessages = retain(c.sendMessages, func(m *sendMessage) bool {
		return !m.finished()
	})

	// heartbeat
	if c.lastHeartbeat+cfg.HeartbeatInterval <= now {
		c.lastHeartbeat = now

		blob := protocol.NewHeartbeat(now)
		if err := grouper.ensureSpace(blob.Size()); err != nil {
			return err
		}
		grouper.push(blob)
	}

	// heartbeat responses
	for _, response := range c.heartbeatResponses {
		if err := grouper.ensureSpace(response.Size()); err != nil {
			return err
		}
		grouper.push(response)
	}
	c.heartbeatResponses = c.heartbeatResponses[:0]

	// acknowledgements
	for _, ack := range c.acknowledgements {
		if err := grouper.ensureSpace(ack.Size()); err != nil {
			return err
		}
		grouper.push(ack)
	}
	c.acknowledgements = c.acknowledgements[:0]

	// disconnect blob on the way out
	if c.dropConnection {
		blob := protocol.Disconnect{}
		if err := grouper.ensureSpace(blob.Size()); err != nil {
			return err
		}
		grouper.push(blob)
	}

	if err := grouper.sendRemaining(); err != nil {
		return err
	}

	// drop incomplete unreliable reassemblies past their hold time
	if c.hasRTT {
		dropDelay := scaleRTT(c.cachedRTT, cfg.UnreliableDropThreshold)
		c.receiveMessages = retain(c.receiveMessages, func(m *receiveMessage) bool {
			return m.reliable || m.lastReceived+dropDelay > now
		})
	}

	// trim the reliable id blacklist
	if c.hasRTT {
		trimDelay := scaleRTT(c.cachedRTT, cfg.ReliableBlacklistMemory)
		earliest := now - trimDelay
		c.reliableBlacklist = retain(c.reliableBlacklist, func(e blacklistEntry) bool {
			return e.time >= earliest
		})
	}

	return nil
}

// resendDelay returns how long a reliable message waits between waves, in
// terms of the measured round trip time.
func (c *connection) resendDelay(cfg *Config) (time.Duration, bool) {
	if !c.hasRTT {
		return 0, false
	}
	return scaleRTT(c.cachedRTT, cfg.ReliableResendThreshold), true
}

// receive dispatches the blobs of one decoded packet. An error means the
// packet carried malformed data; already-applied blobs stay applied.
func (c *connection) receive(now time.Duration, cfg *Config, packet *protocol.Packet) error {
	c.lastKeepAlive = now

	for _, blob := range packet.Blobs() {
		switch blob := blob.(type) {
		case protocol.Fragment:
			// a blacklisted reliable id was already delivered;
			// drop the fragment but still emit the ack so the
			// sender stops retransmitting
			if !(blob.SendAck && c.isBlacklisted(blob.FragmentationID)) {
				if err := c.addFragment(now, blob); err != nil {
					return err
				}
			}

			if ack, ok := blob.Acknowledgement(); ok {
				c.acknowledgements = append(c.acknowledgements, ack)
			}

		case protocol.Heartbeat:
			// the first heartbeat from the peer completes the
			// opening party's handshake
			if c.handshakePending {
				c.handshakePending = false
				c.justConnected = true
			}

			c.heartbeatResponses = append(c.heartbeatResponses, protocol.HeartbeatResponse{SendTime: blob.SendTime})

		case protocol.HeartbeatResponse:
			rtt := now - blob.Time()
			if rtt < 0 {
				rtt = 0
			}

			c.rttSamples = append(c.rttSamples, rtt)
			if drop := len(c.rttSamples) - cfg.RTTMemory; drop > 0 {
				c.rttSamples = c.rttSamples[drop:]
			}

			var total time.Duration
			for _, sample := range c.rttSamples {
				total += sample
			}
			if n := len(c.rttSamples); n > 0 {
				c.cachedRTT = total / time.Duration(n)
				c.hasRTT = true
			}

		case protocol.Acknowledgement:
			message := c.findSendMessage(blob.FragmentationID)
			if message == nil {
				// already fully delivered and removed
				continue
			}
			r := interval.Range{
				Start: int(blob.Start),
				End:   int(blob.Start) + int(blob.Len),
			}
			if err := message.setDelivered(r); err != nil {
				return err
			}

		case protocol.Disconnect:
			c.dropConnection = true
		}
	}

	return nil
}

func (c *connection) addFragment(now time.Duration, frag protocol.Fragment) error {
	for _, message := range c.receiveMessages {
		if message.fragmentationID == frag.FragmentationID {
			return message.addFragment(now, frag)
		}
	}

	message, err := newReceiveMessage(now, frag)
	if err != nil {
		return err
	}
	c.receiveMessages = append(c.receiveMessages, message)
	return nil
}

func (c *connection) findSendMessage(fragmentationID uint16) *sendMessage {
	for _, message := range c.sendMessages {
		if message.fragmentationID == fragmentationID {
			return message
		}
	}
	return nil
}

// flushMessages removes each complete reassembly and hands its payload to
// flush. Completed reliable ids are blacklisted to suppress delayed
// duplicate fragments.
func (c *connection) flushMessages(now time.Duration, flush func(data []byte)) {
	i := 0
	for i < len(c.receiveMessages) {
		message := c.receiveMessages[i]
		if !message.complete() {
			i++
			continue
		}

		if message.reliable {
			c.reliableBlacklist = append(c.reliableBlacklist, blacklistEntry{
				time: now,
				id:   message.fragmentationID,
			})
		}

		c.receiveMessages = append(c.receiveMessages[:i], c.receiveMessages[i+1:]...)
		flush(message.data)
	}
}

func (c *connection) isBlacklisted(id uint16) bool {
	for _, entry := range c.reliableBlacklist {
		if entry.id == id {
			return true
		}
	}
	return false
}

// roundTripTime returns the mean of the recent heartbeat samples, ok=false
// before the first sample.
func (c *connection) roundTripTime() (time.Duration, bool) {
	return c.cachedRTT, c.hasRTT
}

// inTransit returns the number of messages not yet fully delivered.
func (c *connection) inTransit() int {
	return len(c.sendMessages)
}

// drop marks the connection for removal at the end of the next update,
// after its Disconnect blob ships.
func (c *connection) drop() {
	c.dropConnection = true
}

func (c *connection) shouldDrop() bool {
	return c.dropConnection
}

// takeJustConnected consumes the pending NewConnection signal.
func (c *connection) takeJustConnected() bool {
	if c.justConnected {
		c.justConnected = false
		return true
	}
	return false
}

func (c *connection) metrics() metrics.ConnectionMetrics {
	return metrics.ConnectionMetrics{
		SentPackets:        c.sentPackets,
		SentBytes:          c.sentBytes,
		RTT:                c.cachedRTT,
		HasRTT:             c.hasRTT,
		ReliableMessages:   c.reliableMessages,
		UnreliableMessages: c.unreliableMessages,
	}
}

// scaleRTT multiplies a round trip time by a configured threshold factor.
func scaleRTT(rtt time.Duration, factor float64) time.Duration {
	return time.Duration(float64(rtt) * factor)
}

// retain filters a slice in place, keeping the elements keep returns true
// for.
func retain[T any](s []T, keep func(T) bool) []T {
	filtered := s[:0]
	for _, element := range s {
		if keep(element) {
			filtered = append(filtered, element)
		}
	}
	return filtered
}
