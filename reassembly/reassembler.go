package reassembly

import (
	"errors"
	"fmt"

	"github.com/opd-ai/toxnet/wire"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFragment is returned when a standalone packet is pushed.
	ErrNotFragment = errors.New("standalone packet is not a fragment")
	// ErrOrphanFinal is returned when a final fragment arrives without any
	// preceding fragment. The fragment is discarded.
	ErrOrphanFinal = errors.New("final fragment without open transfer")
)

// Reassembler accumulates lossless fragments per peer and channel.
type Reassembler struct {
	buffers map[uint32]*[wire.MaxChannels][]byte
	open    int
}

// New creates an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{
		buffers: make(map[uint32]*[wire.MaxChannels][]byte),
	}
}

// Push feeds one fragment. When marker is MarkerFinal and a transfer is open,
// the completed payload is returned with complete set to true and the buffer
// for (peer, channel) is released.
func (r *Reassembler) Push(peer uint32, channel wire.ChannelID, marker wire.FragmentMarker, payload []byte) (packet []byte, complete bool, err error) {
	if !channel.Valid() {
		return nil, false, fmt.Errorf("%w: %d", wire.ErrInvalidChannel, channel)
	}

	switch marker {
	case wire.MarkerFragment:
		slot := r.slot(peer, channel)
		if *slot == nil {
			r.open++
			*slot = make([]byte, 0, len(payload)*2)
		}
		*slot = append(*slot, payload...)
		return nil, false, nil

	case wire.MarkerFinal:
		chans, ok := r.buffers[peer]
		if !ok || chans[channel] == nil {
			logrus.WithFields(logrus.Fields{
				"function": "Reassembler.Push",
				"peer":     peer,
				"channel":  channel,
				"size":     len(payload),
			}).Debug("Discarding final fragment without open transfer")
			return nil, false, ErrOrphanFinal
		}

		packet = append(chans[channel], payload...)
		chans[channel] = nil
		r.open--
		r.pruneIfIdle(peer, chans)

		logrus.WithFields(logrus.Fields{
			"function": "Reassembler.Push",
			"peer":     peer,
			"channel":  channel,
			"size":     len(packet),
		}).Trace("Large packet reassembled")
		return packet, true, nil

	case wire.MarkerStandalone:
		return nil, false, ErrNotFragment

	default:
		return nil, false, fmt.Errorf("%w: %d", wire.ErrInvalidMarker, marker)
	}
}

func (r *Reassembler) slot(peer uint32, channel wire.ChannelID) *[]byte {
	chans, ok := r.buffers[peer]
	if !ok {
		chans = new([wire.MaxChannels][]byte)
		r.buffers[peer] = chans
	}
	return &chans[channel]
}

func (r *Reassembler) pruneIfIdle(peer uint32, chans *[wire.MaxChannels][]byte) {
	for _, buf := range chans {
		if buf != nil {
			return
		}
	}
	delete(r.buffers, peer)
}

// InProgress reports whether (peer, channel) is accumulating fragments.
func (r *Reassembler) InProgress(peer uint32, channel wire.ChannelID) bool {
	if !channel.Valid() {
		return false
	}
	chans, ok := r.buffers[peer]
	return ok && chans[channel] != nil
}

// Pending returns the number of bytes buffered for (peer, channel).
func (r *Reassembler) Pending(peer uint32, channel wire.ChannelID) int {
	if !channel.Valid() {
		return 0
	}
	if chans, ok := r.buffers[peer]; ok {
		return len(chans[channel])
	}
	return 0
}

// OpenCount returns the number of (peer, channel) pairs accumulating fragments.
func (r *Reassembler) OpenCount() int {
	return r.open
}

// Reset discards the buffer for (peer, channel), returning it to IDLE.
func (r *Reassembler) Reset(peer uint32, channel wire.ChannelID) {
	if !channel.Valid() {
		return
	}
	chans, ok := r.buffers[peer]
	if !ok || chans[channel] == nil {
		return
	}
	chans[channel] = nil
	r.open--
	r.pruneIfIdle(peer, chans)
}

// ResetPeer discards every buffer held for peer.
func (r *Reassembler) ResetPeer(peer uint32) {
	chans, ok := r.buffers[peer]
	if !ok {
		return
	}
	for _, buf := range chans {
		if buf != nil {
			r.open--
		}
	}
	delete(r.buffers, peer)
}

// ResetAll discards every buffer.
func (r *Reassembler) ResetAll() {
	r.buffers = make(map[uint32]*[wire.MaxChannels][]byte)
	r.open = 0
}
