package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	hs := Handshake{ProtocolID: 0xdeadbeefcafe}
	data := hs.Serialize()
	require.Len(t, data, HandshakeSize)

	decoded, ok := DeserializeHandshake(data)
	require.True(t, ok)
	assert.Equal(t, hs, decoded)
}

func TestHandshakeProbeRejectsPackets(t *testing.T) {
	// a serialized packet of exactly HandshakeSize bytes must not probe
	// as a handshake
	var p Packet
	p.Push(Fragment{FragmentationID: 1, TotalSize: 3, Start: 0, Data: []byte{1, 2, 3}})
	data := p.Serialize()
	require.Len(t, data, HandshakeSize)

	_, ok := DeserializeHandshake(data)
	assert.False(t, ok)
}

func TestHandshakeProbeRejectsWrongLength(t *testing.T) {
	hs := Handshake{ProtocolID: 1}

	_, ok := DeserializeHandshake(hs.Serialize()[:HandshakeSize-1])
	assert.False(t, ok)

	_, ok = DeserializeHandshake(append(hs.Serialize(), 0))
	assert.False(t, ok)
}
