package protocol

import "fmt"

// Packet is the payload of one UDP datagram: a sequence of length-prefixed
// blobs. The zero value is an empty packet ready for use.
type Packet struct {
	blobs []Blob
}

// Push appends a blob to the packet. It does not check the packet against
// any size bound; callers track that with SpaceLeft.
func (p *Packet) Push(b Blob) {
	p.blobs = append(p.blobs, b)
}

// Blobs returns the packet's blobs in order.
func (p *Packet) Blobs() []Blob {
	return p.blobs
}

// BlobCount returns the number of blobs in the packet.
func (p *Packet) BlobCount() int {
	return len(p.blobs)
}

// Size returns the serialized length of the packet in bytes.
func (p *Packet) Size() int {
	size := 0
	for _, b := range p.blobs {
		size += blobLengthSize + b.Size()
	}
	return size
}

// SpaceLeft returns the size of the largest blob that could still be added
// without the serialized packet exceeding maxSize. The next blob's length
// prefix is already accounted for.
func (p *Packet) SpaceLeft(maxSize int) int {
	left := maxSize - p.Size() - blobLengthSize
	if left < 0 {
		return 0
	}
	return left
}

// Serialize encodes the packet for the wire.
func (p *Packet) Serialize() []byte {
	buf := make([]byte, 0, p.Size())
	for _, b := range p.blobs {
		size := b.Size()
		buf = append(buf, byte(size>>8), byte(size))
		buf = append(buf, b.tag())
		buf = b.appendBody(buf)
	}
	return buf
}

// DeserializePacket decodes a datagram payload into a packet. Any decode
// failure — a short buffer, an unknown tag, trailing garbage — makes the
// whole packet malformed.
func DeserializePacket(data []byte) (*Packet, error) {
	p := &Packet{}

	for len(data) > 0 {
		if len(data) < blobLengthSize {
			return nil, fmt.Errorf("%d trailing bytes, need %d for a blob length: %w", len(data), blobLengthSize, ErrMalformed)
		}
		size := int(data[0])<<8 | int(data[1])
		data = data[blobLengthSize:]

		if size > len(data) {
			return nil, fmt.Errorf("blob length %d exceeds remaining %d bytes: %w", size, len(data), ErrMalformed)
		}

		blob, err := decodeBlob(data[:size])
		if err != nil {
			return nil, err
		}
		p.blobs = append(p.blobs, blob)
		data = data[size:]
	}

	return p, nil
}
