package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeByteRanges(t *testing.T) {
	for ch := ChannelID(0); ch < MaxChannels; ch++ {
		lossless, err := Header{Channel: ch, Type: ChannelLossless}.Encode()
		require.NoError(t, err)
		assert.Equal(t, byte(161)+byte(ch), lossless[0])
		assert.True(t, IsLosslessByte(lossless[0]))
		assert.NotEqual(t, LosslessControlByte, lossless[0], "control byte must never be produced")

		lossy, err := Header{Channel: ch, Type: ChannelLossy}.Encode()
		require.NoError(t, err)
		assert.Equal(t, byte(192)+byte(ch), lossy[0])
		assert.Equal(t, byte(0), lossy[1])
		assert.True(t, IsLossyByte(lossy[0]))
	}
}

func TestHeaderEncodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		wantErr error
	}{
		{"channel out of range", Header{Channel: MaxChannels}, ErrInvalidChannel},
		{"lossless marker 3", Header{Channel: 0, Marker: 3}, ErrInvalidMarker},
		{"lossy with fragment marker", Header{Channel: 1, Type: ChannelLossy, Marker: MarkerFragment}, ErrInvalidMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.header.Encode()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFrameDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello channel")

	for _, typ := range []ChannelType{ChannelLossless, ChannelLossy} {
		for ch := ChannelID(0); ch < MaxChannels; ch++ {
			raw, err := Frame(Header{Channel: ch, Type: typ}, payload)
			require.NoError(t, err)
			require.Len(t, raw, HeaderSize+len(payload))

			h, got, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, ch, h.Channel)
			assert.Equal(t, typ, h.Type)
			assert.Equal(t, MarkerStandalone, h.Marker)
			assert.Equal(t, payload, got)
		}
	}
}

func TestFrameFragmentMarkers(t *testing.T) {
	raw, err := Frame(Header{Channel: 0, Marker: MarkerFragment}, []byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, []byte{161, 1, 0xAA}, raw)

	raw, err = Frame(Header{Channel: 0, Marker: MarkerFinal}, []byte{0xBB})
	require.NoError(t, err)
	assert.Equal(t, []byte{161, 2, 0xBB}, raw)

	h, _, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, MarkerFinal, h.Marker)
}

func TestFrameEmptyPayload(t *testing.T) {
	_, err := Frame(Header{Channel: 0}, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestDecodeDropsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr error
	}{
		{"empty", nil, ErrShortPacket},
		{"channel byte only", []byte{161}, ErrShortPacket},
		{"header without payload", []byte{161, 0}, ErrShortPacket},
		{"control packet", []byte{160, 0, 1}, ErrControlPacket},
		{"below custom range", []byte{69, 0, 1}, ErrForeignPacket},
		{"byte 255", []byte{255, 0, 1}, ErrForeignPacket},
		{"lossless channel 10", []byte{171, 0, 1}, ErrInvalidChannel},
		{"lossless top of range", []byte{191, 0, 1}, ErrInvalidChannel},
		{"lossy channel 10", []byte{202, 0, 1}, ErrInvalidChannel},
		{"lossy top of range", []byte{254, 0, 1}, ErrInvalidChannel},
		{"unknown marker", []byte{161, 7, 1}, ErrInvalidMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, payload, err := Decode(tt.raw)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, payload)
			})
		})
	}
}

func TestDecodeLossyIgnoresMarkerByte(t *testing.T) {
	h, payload, err := Decode([]byte{195, 9, 'x'})
	require.NoError(t, err)
	assert.Equal(t, ChannelID(3), h.Channel)
	assert.Equal(t, ChannelLossy, h.Type)
	assert.Equal(t, MarkerStandalone, h.Marker)
	assert.Equal(t, []byte("x"), payload)
}

func TestChannelTypeString(t *testing.T) {
	assert.Equal(t, "lossless", ChannelLossless.String())
	assert.Equal(t, "lossy", ChannelLossy.String())
	assert.Equal(t, "ChannelType(7)", ChannelType(7).String())
}
