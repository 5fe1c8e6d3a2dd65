package toxnet

import (
	"fmt"

	"github.com/opd-ai/toxnet/codec"
	"github.com/opd-ai/toxnet/wire"
)

// SendValue encodes v as CBOR and sends it on channel. Lossless channels
// fragment large values; lossy channels reject values that do not fit one
// packet.
func (c *Channeled) SendValue(peer uint32, channel wire.ChannelID, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value for channel %d: %w", channel, err)
	}

	t, err := c.GetChannelType(channel)
	if err != nil {
		return err
	}
	if t == wire.ChannelLossless {
		return c.SendPacketLarge(peer, channel, data)
	}
	return c.SendPacket(peer, channel, data)
}

// DecodeValue decodes a packet produced by SendValue into v.
func DecodeValue(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}
