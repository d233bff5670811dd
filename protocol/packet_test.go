package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobSizeMatchesSerialization(t *testing.T) {
	blobs := []Blob{
		Fragment{SendAck: true, FragmentationID: 80, TotalSize: 10, Start: 5, Data: []byte{1, 2, 3, 4, 5}},
		Fragment{SendAck: false, FragmentationID: 50, TotalSize: 10, Start: 10, Data: nil},
		Heartbeat{SendTime: 123456},
		HeartbeatResponse{SendTime: 123456},
		Acknowledgement{FragmentationID: 7, Start: 100, Len: 42},
		Disconnect{},
	}

	for _, blob := range blobs {
		var p Packet
		p.Push(blob)
		assert.Equal(t, blob.Size()+2, len(p.Serialize()), "%T", blob)
	}
}

func TestPacketSizeMatchesSerialization(t *testing.T) {
	var p Packet
	p.Push(Fragment{SendAck: true, FragmentationID: 80, TotalSize: 10, Start: 5, Data: []byte{1, 2, 3, 4, 5}})
	p.Push(Fragment{SendAck: true, FragmentationID: 80, TotalSize: 10, Start: 0, Data: []byte{6, 7, 8, 9, 10}})

	assert.Equal(t, p.Size(), len(p.Serialize()))
}

func TestPacketRoundTrip(t *testing.T) {
	var p Packet
	p.Push(Fragment{SendAck: true, FragmentationID: 80, TotalSize: 10, Start: 5, Data: []byte{1, 2, 3, 4, 5}})
	p.Push(Heartbeat{SendTime: 9999})
	p.Push(HeartbeatResponse{SendTime: 9999})
	p.Push(Acknowledgement{FragmentationID: 80, Start: 5, Len: 5})
	p.Push(Disconnect{})

	decoded, err := DeserializePacket(p.Serialize())
	require.NoError(t, err)

	require.Equal(t, p.BlobCount(), decoded.BlobCount())
	assert.Equal(t, p.Blobs(), decoded.Blobs())
}

func TestEmptyPacketRoundTrip(t *testing.T) {
	decoded, err := DeserializePacket(nil)
	require.NoError(t, err)
	assert.Zero(t, decoded.BlobCount())
}

func TestFragmentAckBitRoundTrip(t *testing.T) {
	for _, sendAck := range []bool{true, false} {
		var p Packet
		p.Push(Fragment{SendAck: sendAck, FragmentationID: MaxFragmentationID, TotalSize: 8, Start: 4, Data: []byte{1, 2, 3, 4}})

		decoded, err := DeserializePacket(p.Serialize())
		require.NoError(t, err)

		frag, ok := decoded.Blobs()[0].(Fragment)
		require.True(t, ok)
		assert.Equal(t, sendAck, frag.SendAck)
		assert.Equal(t, uint16(MaxFragmentationID), frag.FragmentationID)
	}
}

func TestFragmentAcknowledgement(t *testing.T) {
	frag := Fragment{SendAck: true, FragmentationID: 12, TotalSize: 100, Start: 40, Data: make([]byte, 20)}

	ack, ok := frag.Acknowledgement()
	require.True(t, ok)
	assert.Equal(t, Acknowledgement{FragmentationID: 12, Start: 40, Len: 20}, ack)

	frag.SendAck = false
	_, ok = frag.Acknowledgement()
	assert.False(t, ok)
}

func TestSpaceLeft(t *testing.T) {
	var p Packet
	assert.Equal(t, 18, p.SpaceLeft(20))

	p.Push(Heartbeat{})
	// 2-byte prefix + 9-byte blob leaves 20-11-2
	assert.Equal(t, 7, p.SpaceLeft(20))

	assert.Equal(t, 0, p.SpaceLeft(8))
}

func TestMalformedPackets(t *testing.T) {
	cases := map[string][]byte{
		"short length prefix":     {0x00},
		"length beyond buffer":    {0x00, 0x05, 0x01},
		"empty blob":              {0x00, 0x00},
		"unknown tag":             {0x00, 0x01, 0x07},
		"short fragment body":     {0x00, 0x03, 0x00, 0x01, 0x02},
		"short heartbeat body":    {0x00, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00},
		"oversize heartbeat body": {0x00, 0x0a, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		"disconnect with body":    {0x00, 0x02, 0x04, 0xff},
	}

	for name, data := range cases {
		_, err := DeserializePacket(data)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestFragmentRangeBeyondTotalSizeIsMalformed(t *testing.T) {
	var p Packet
	p.Push(Fragment{SendAck: false, FragmentationID: 1, TotalSize: 4, Start: 3, Data: []byte{1, 2}})

	_, err := DeserializePacket(p.Serialize())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTrailingGarbageIsMalformed(t *testing.T) {
	var p Packet
	p.Push(Heartbeat{SendTime: 1})

	data := append(p.Serialize(), 0xab)
	_, err := DeserializePacket(data)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHeartbeatTime(t *testing.T) {
	hb := NewHeartbeat(1500 * time.Millisecond)
	assert.Equal(t, uint64(1500), hb.SendTime)
	assert.Equal(t, int64(1500), hb.Time().Milliseconds())
}
