// Package wire implements the two-byte channel framing used on top of Tox
// custom packets.
//
// Tox reserves two ranges of packet ids for applications: 160-191 for lossless
// packets and 192-254 for lossy packets. The framer maps a small fixed set of
// logical channels onto those ranges and adds a fragment marker byte so that
// lossless payloads larger than one packet can be split and reassembled.
//
// Packet layout:
//
//	byte 0   : 161+channel (lossless) or 192+channel (lossy)
//	byte 1   : fragment marker, 0 standalone, 1 fragment, 2 final fragment (always 0 when lossy)
//	byte 2.. : payload
//
// Byte 160 is the Tox internal control packet id and is never produced here.
package wire

import (
	"errors"
	"fmt"
)

// ChannelID identifies a logical channel. Valid ids are below MaxChannels.
type ChannelID uint8

// ChannelType selects the Tox delivery class used by a channel.
type ChannelType uint8

const (
	// ChannelLossless channels are delivered reliably and in order per peer.
	ChannelLossless ChannelType = iota
	// ChannelLossy channels may drop or reorder packets.
	ChannelLossy
)

// String returns a human readable channel type.
func (t ChannelType) String() string {
	switch t {
	case ChannelLossless:
		return "lossless"
	case ChannelLossy:
		return "lossy"
	default:
		return fmt.Sprintf("ChannelType(%d)", uint8(t))
	}
}

// FragmentMarker is the second header byte of a lossless packet.
type FragmentMarker uint8

const (
	// MarkerStandalone marks a payload that fits a single packet.
	MarkerStandalone FragmentMarker = 0
	// MarkerFragment marks a non-final piece of a large payload.
	MarkerFragment FragmentMarker = 1
	// MarkerFinal marks the last piece of a large payload.
	MarkerFinal FragmentMarker = 2
)

const (
	// MaxChannels is the size of the channel space.
	MaxChannels = 10

	// HeaderSize is the number of framing bytes in front of every payload.
	HeaderSize = 2

	// MinPacketSize is the smallest raw packet that carries at least one payload byte.
	MinPacketSize = HeaderSize + 1

	// LosslessRangeStart is the first packet id Tox accepts for lossless custom packets.
	LosslessRangeStart byte = 160
	// LosslessRangeEnd is the last packet id Tox accepts for lossless custom packets.
	LosslessRangeEnd byte = 191
	// LosslessControlByte is reserved for internal control packets.
	LosslessControlByte byte = 160
	// LossyRangeStart is the first packet id Tox accepts for lossy custom packets.
	LossyRangeStart byte = 192
	// LossyRangeEnd is the last packet id Tox accepts for lossy custom packets.
	LossyRangeEnd byte = 254

	losslessChannelBase byte = 161
	lossyChannelBase    byte = 192
)

var (
	// ErrInvalidChannel is returned for channel ids outside [0, MaxChannels).
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrEmptyPayload is returned when framing an empty payload.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrInvalidMarker is returned for fragment markers other than 0, 1 and 2,
	// and for lossy headers with a non-zero marker.
	ErrInvalidMarker = errors.New("invalid fragment marker")
	// ErrShortPacket is returned when decoding fewer than MinPacketSize bytes.
	ErrShortPacket = errors.New("packet too short")
	// ErrControlPacket is returned when decoding the reserved control packet id.
	ErrControlPacket = errors.New("reserved control packet")
	// ErrForeignPacket is returned for packet ids outside the custom packet ranges.
	ErrForeignPacket = errors.New("packet id outside custom ranges")
)

// Valid reports whether the channel id is inside the channel space.
func (c ChannelID) Valid() bool {
	return c < MaxChannels
}

// Header is the decoded form of the two framing bytes.
type Header struct {
	Channel ChannelID
	Type    ChannelType
	Marker  FragmentMarker
}

// IsLosslessByte reports whether b is a packet id Tox accepts as lossless.
func IsLosslessByte(b byte) bool {
	return b >= LosslessRangeStart && b <= LosslessRangeEnd
}

// IsLossyByte reports whether b is a packet id Tox accepts as lossy.
func IsLossyByte(b byte) bool {
	return b >= LossyRangeStart && b <= LossyRangeEnd
}

// Encode returns the two framing bytes for h.
func (h Header) Encode() ([HeaderSize]byte, error) {
	var out [HeaderSize]byte
	if !h.Channel.Valid() {
		return out, fmt.Errorf("%w: %d", ErrInvalidChannel, h.Channel)
	}

	switch h.Type {
	case ChannelLossless:
		if h.Marker > MarkerFinal {
			return out, fmt.Errorf("%w: %d", ErrInvalidMarker, h.Marker)
		}
		out[0] = losslessChannelBase + byte(h.Channel)
		out[1] = byte(h.Marker)
	case ChannelLossy:
		// lossy streams never fragment
		if h.Marker != MarkerStandalone {
			return out, fmt.Errorf("%w: lossy packets cannot carry marker %d", ErrInvalidMarker, h.Marker)
		}
		out[0] = lossyChannelBase + byte(h.Channel)
	default:
		return out, fmt.Errorf("unknown channel type %d", h.Type)
	}

	return out, nil
}

// Frame prepends the encoded header to payload and returns the raw packet.
func Frame(h Header, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	prefix, err := h.Encode()
	if err != nil {
		return nil, err
	}

	packet := make([]byte, HeaderSize+len(payload))
	copy(packet, prefix[:])
	copy(packet[HeaderSize:], payload)
	return packet, nil
}

// Decode splits a raw packet into its header and payload. The returned payload
// aliases raw. Any error means the packet should be dropped.
func Decode(raw []byte) (Header, []byte, error) {
	if len(raw) < MinPacketSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(raw))
	}

	var h Header
	switch id := raw[0]; {
	case IsLossyByte(id):
		h.Type = ChannelLossy
		h.Channel = ChannelID(id - lossyChannelBase)
		// byte 1 is ignored, lossy packets are always standalone
	case id == LosslessControlByte:
		return Header{}, nil, ErrControlPacket
	case IsLosslessByte(id):
		h.Type = ChannelLossless
		h.Channel = ChannelID(id - losslessChannelBase)
		h.Marker = FragmentMarker(raw[1])
		if h.Marker > MarkerFinal {
			return Header{}, nil, fmt.Errorf("%w: %d", ErrInvalidMarker, raw[1])
		}
	default:
		return Header{}, nil, fmt.Errorf("%w: %d", ErrForeignPacket, id)
	}

	if !h.Channel.Valid() {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrInvalidChannel, h.Channel)
	}

	return h, raw[HeaderSize:], nil
}
