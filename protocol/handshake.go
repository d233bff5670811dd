package protocol

import "encoding/binary"

// handshakeMagic identifies a handshake datagram. A packet's first two bytes
// are a blob length, and the length spelled by "NI" is far larger than the
// rest of a HandshakeSize datagram, so a datagram of that size starting with
// the magic can never be a valid packet.
const handshakeMagic = "NIFTY-HS"

// HandshakeSize is the exact length of a handshake datagram: the 8-byte
// magic followed by the 8-byte protocol id.
const HandshakeSize = len(handshakeMagic) + 8

// Handshake is the connection-opening datagram. It is a distinct top-level
// datagram, not a blob inside a Packet; the socket engine probes for it
// before attempting packet decode.
type Handshake struct {
	ProtocolID uint64
}

// Serialize encodes the handshake for the wire.
func (h Handshake) Serialize() []byte {
	buf := make([]byte, 0, HandshakeSize)
	buf = append(buf, handshakeMagic...)
	return binary.BigEndian.AppendUint64(buf, h.ProtocolID)
}

// DeserializeHandshake reports whether the datagram is a handshake, and if
// so decodes it.
func DeserializeHandshake(data []byte) (Handshake, bool) {
	if len(data) != HandshakeSize || string(data[:len(handshakeMagic)]) != handshakeMagic {
		return Handshake{}, false
	}
	return Handshake{
		ProtocolID: binary.BigEndian.Uint64(data[len(handshakeMagic):]),
	}, true
}
