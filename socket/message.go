package socket

import (
	"errors"
	"fmt"
	"time"

	"github.com/localrivet/niftynet/interval"
	"github.com/localrivet/niftynet/protocol"
)

// errMessageDone signals that a scratch interval set has no gaps left, so
// the message needs no further fragments this wave.
var errMessageDone = errors.New("message fully carved")

// errNeedSpace signals that the available space cannot fit a fragment
// header plus at least one payload byte.
var errNeedSpace = errors.New("not enough space for a fragment")

// sendMessage is an outgoing message a connection is trying to deliver.
type sendMessage struct {
	data            []byte
	fragmentationID uint16

	// reliable messages are retransmitted until acknowledgements cover
	// the full payload; unreliable messages are carved once and assumed
	// delivered.
	reliable bool
	// sent and lastSent track the last transmission wave of a reliable
	// message; sent is false until the first wave.
	sent     bool
	lastSent time.Duration

	// delivered is advanced by acknowledgements for reliable messages,
	// and by the carve pass itself for unreliable ones.
	delivered *interval.Set
}

func newSendMessage(reliable bool, fragmentationID uint16, data []byte) *sendMessage {
	return &sendMessage{
		data:            data,
		fragmentationID: fragmentationID,
		reliable:        reliable,
		delivered:       interval.NewSet(len(data)),
	}
}

// deliveredIntervals returns a scratch copy of the message's delivered
// intervals for one carve wave. The scratch exists so multiple fragments in
// one wave do not re-carve the same gap; for reliable messages it is
// discarded afterwards, the real set only advances on acknowledgements.
func (m *sendMessage) deliveredIntervals() *interval.Set {
	return m.delivered.Clone()
}

// commitDelivered replaces the message's delivered intervals. Used for
// unreliable messages, where one carve wave is assumed to have reached the
// wire.
func (m *sendMessage) commitDelivered(scratch *interval.Set) {
	m.delivered = scratch
}

// setDelivered marks a payload range as acknowledged. It fails if the range
// reaches outside the payload.
func (m *sendMessage) setDelivered(r interval.Range) error {
	if r.End > len(m.data) {
		return fmt.Errorf("acknowledged range %d..%d outside payload of %d bytes", r.Start, r.End, len(m.data))
	}
	m.delivered.Insert(r)
	return nil
}

// carveFragment carves the next fragment out of the first gap in scratch,
// clipped to availableSpace. It returns errMessageDone when scratch has no
// gaps, and errNeedSpace when availableSpace cannot fit the fragment header
// plus one byte. The carved range is recorded in scratch so the next call
// yields the next gap.
func (m *sendMessage) carveFragment(scratch *interval.Set, availableSpace int) (protocol.Fragment, error) {
	gap, ok := scratch.Gaps().Next()
	if !ok {
		return protocol.Fragment{}, errMessageDone
	}

	availableSpace -= protocol.FragmentBlobOverhead
	if availableSpace <= 0 {
		return protocol.Fragment{}, errNeedSpace
	}

	if max := gap.Start + availableSpace; gap.End > max {
		gap.End = max
	}

	scratch.Insert(gap)

	return protocol.Fragment{
		SendAck:         m.reliable,
		FragmentationID: m.fragmentationID,
		TotalSize:       uint32(len(m.data)),
		Start:           uint32(gap.Start),
		Data:            m.data[gap.Start:gap.End],
	}, nil
}

// finished reports whether the whole payload is accounted for: acknowledged
// for reliable messages, carved for unreliable ones.
func (m *sendMessage) finished() bool {
	return m.delivered.Finished()
}

// receiveMessage is an in-progress reassembly of an incoming message.
type receiveMessage struct {
	data            []byte
	fragmentationID uint16
	reliable        bool
	delivered       *interval.Set
	lastReceived    time.Duration
}

// newReceiveMessage creates a reassembly from the first fragment seen for
// an id. The reliable flag is copied from the fragment's ack bit.
func newReceiveMessage(now time.Duration, frag protocol.Fragment) (*receiveMessage, error) {
	m := &receiveMessage{
		data:            make([]byte, frag.TotalSize),
		fragmentationID: frag.FragmentationID,
		reliable:        frag.SendAck,
		delivered:       interval.NewSet(int(frag.TotalSize)),
	}

	if err := m.addFragment(now, frag); err != nil {
		return nil, err
	}
	return m, nil
}

// addFragment copies a fragment's bytes into the reassembly buffer.
// Overlapping duplicates are permitted; a fragment contradicting the
// message's total size or writing out of range is an error.
func (m *receiveMessage) addFragment(now time.Duration, frag protocol.Fragment) error {
	if int(frag.TotalSize) != len(m.data) {
		return fmt.Errorf("fragment total size %d contradicts message size %d", frag.TotalSize, len(m.data))
	}

	start := int(frag.Start)
	end := start + len(frag.Data)
	if end > len(m.data) {
		return fmt.Errorf("fragment range %d..%d outside message of %d bytes", start, end, len(m.data))
	}

	copy(m.data[start:end], frag.Data)
	m.delivered.Insert(interval.Range{Start: start, End: end})
	m.lastReceived = now

	return nil
}

// complete reports whether the reassembly covers the whole message.
func (m *receiveMessage) complete() bool {
	return m.delivered.Finished()
}
