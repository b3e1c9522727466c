// Package transport defines the packet and header value types that cross the
// boundary between the simulation host and protocol modules.
//
// These are plain value types: construction always succeeds given well-typed
// inputs, and no field-range or checksum validation is performed here.
// Whether a checksum matches the payload is a protocol-level concern.
//
// Example:
//
//	pkt := transport.NewSegment(seq, 0, 0, payload)
//	pkt.Header.Checksum = checksum.Sum(payload)
//	ctx.SendPacket(pkt)
package transport

import (
	"encoding/binary"
	"errors"
)

// TCP header flag bits. Semantics are protocol-defined; the harness only
// carries them.
const (
	FlagFIN uint8 = 0x01
	FlagSYN uint8 = 0x02
	FlagRST uint8 = 0x04
	FlagPSH uint8 = 0x08
	FlagACK uint8 = 0x10
	FlagURG uint8 = 0x20
)

// TCPHeader is the fixed five-field transport header. A new header is built
// per outgoing packet; instances are not mutated after construction.
type TCPHeader struct {
	SeqNum     uint32
	AckNum     uint32
	Flags      uint8
	WindowSize uint16
	Checksum   uint16
}

// NewTCPHeader builds a header with the given sequence, acknowledgment,
// flags and window. The checksum starts at zero; protocols that use it fill
// it in explicitly.
func NewTCPHeader(seq, ack uint32, flags uint8, window uint16) TCPHeader {
	return TCPHeader{
		SeqNum:     seq,
		AckNum:     ack,
		Flags:      flags,
		WindowSize: window,
	}
}

// IsSYN reports whether the SYN flag is set.
func (h TCPHeader) IsSYN() bool { return h.Flags&FlagSYN != 0 }

// IsACK reports whether the ACK flag is set.
func (h TCPHeader) IsACK() bool { return h.Flags&FlagACK != 0 }

// IsFIN reports whether the FIN flag is set.
func (h TCPHeader) IsFIN() bool { return h.Flags&FlagFIN != 0 }

// IsRST reports whether the RST flag is set.
func (h TCPHeader) IsRST() bool { return h.Flags&FlagRST != 0 }

// Packet is one transport header plus its payload bytes. Payload length is
// unbounded here; practical limits are host policy (see the limits package).
//
// A packet is owned exclusively by whichever side constructed it. When a
// packet crosses the module boundary it is flattened to scalar fields and a
// copied byte buffer, so no memory is shared by reference across that seam.
type Packet struct {
	Header  TCPHeader
	Payload []byte
}

// NewPacket composes a header and payload into a packet.
func NewPacket(header TCPHeader, payload []byte) Packet {
	return Packet{Header: header, Payload: payload}
}

// NewSegment builds a data packet with the given sequence, acknowledgment
// and flags, leaving window and checksum zero.
func NewSegment(seq, ack uint32, flags uint8, payload []byte) Packet {
	return Packet{Header: NewTCPHeader(seq, ack, flags, 0), Payload: payload}
}

// NewAck builds a pure ACK packet with no payload.
func NewAck(seq, ack uint32, window uint16) Packet {
	return Packet{Header: NewTCPHeader(seq, ack, FlagACK, window)}
}

// Len returns the payload length in bytes.
func (p Packet) Len() int { return len(p.Payload) }

// Clone returns a deep copy of the packet. Used wherever a packet is retained
// past a handler call (e.g. retransmit buffers) so the original owner can
// reuse its buffer.
func (p Packet) Clone() Packet {
	clone := p
	if p.Payload != nil {
		clone.Payload = make([]byte, len(p.Payload))
		copy(clone.Payload, p.Payload)
	}
	return clone
}

// headerSize is the encoded size of a TCPHeader on the wire.
const headerSize = 13

// ErrPacketTooShort is returned when parsing a buffer smaller than an
// encoded header.
var ErrPacketTooShort = errors.New("packet too short")

// Serialize converts a packet to a byte slice for transfer across a
// process or language boundary.
//
// Format: [seq (4 bytes)][ack (4 bytes)][flags (1 byte)][window (2 bytes)]
// [checksum (2 bytes)][payload (variable length)], all big endian.
func (p Packet) Serialize() []byte {
	result := make([]byte, headerSize+len(p.Payload))

	binary.BigEndian.PutUint32(result[0:4], p.Header.SeqNum)
	binary.BigEndian.PutUint32(result[4:8], p.Header.AckNum)
	result[8] = p.Header.Flags
	binary.BigEndian.PutUint16(result[9:11], p.Header.WindowSize)
	binary.BigEndian.PutUint16(result[11:13], p.Header.Checksum)
	copy(result[headerSize:], p.Payload)

	return result
}

// ParsePacket converts a byte slice back to a Packet. The payload is copied
// out of the input buffer.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return Packet{}, ErrPacketTooShort
	}

	pkt := Packet{
		Header: TCPHeader{
			SeqNum:     binary.BigEndian.Uint32(data[0:4]),
			AckNum:     binary.BigEndian.Uint32(data[4:8]),
			Flags:      data[8],
			WindowSize: binary.BigEndian.Uint16(data[9:11]),
			Checksum:   binary.BigEndian.Uint16(data[11:13]),
		},
		Payload: make([]byte, len(data)-headerSize),
	}
	copy(pkt.Payload, data[headerSize:])

	return pkt, nil
}
