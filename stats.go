package toxnet

import (
	"errors"
	"sync/atomic"

	"github.com/opd-ai/toxnet/wire"
)

// Stats is a snapshot of the service counters.
type Stats struct {
	// Send side.
	PacketsSent   uint64 // whole payloads, fragmented or not
	FragmentsSent uint64
	SendFailures  uint64

	// Receive side.
	PacketsReceived    uint64 // standalone packets
	FragmentsReceived  uint64
	PacketsReassembled uint64

	// Silently dropped input.
	DroppedShort          uint64
	DroppedControl        uint64
	DroppedForeign        uint64
	DroppedInvalidChannel uint64
	DroppedInvalidMarker  uint64
	DroppedOrphanFinal    uint64
	DroppedTypeMismatch   uint64

	InboxDepth          int
	OpenFragmentBuffers int
	KnownPeers          int
}

// Dropped returns the total number of dropped input packets.
func (s Stats) Dropped() uint64 {
	return s.DroppedShort + s.DroppedControl + s.DroppedForeign +
		s.DroppedInvalidChannel + s.DroppedInvalidMarker +
		s.DroppedOrphanFinal + s.DroppedTypeMismatch
}

type sendCounters struct {
	packets   atomic.Uint64
	fragments atomic.Uint64
	failures  atomic.Uint64
}

type receiveCounters struct {
	packets     atomic.Uint64
	fragments   atomic.Uint64
	reassembled atomic.Uint64

	droppedShort          atomic.Uint64
	droppedControl        atomic.Uint64
	droppedForeign        atomic.Uint64
	droppedInvalidChannel atomic.Uint64
	droppedInvalidMarker  atomic.Uint64
	droppedOrphan         atomic.Uint64
	droppedTypeMismatch   atomic.Uint64
}

// gauges mirror the inbox and reassembler sizes as of the last release of
// Channeled.mu.
type gauges struct {
	inboxDepth  atomic.Int64
	openBuffers atomic.Int64
}

func (r *receiveCounters) countDecodeError(err error) {
	switch {
	case errors.Is(err, wire.ErrShortPacket):
		r.droppedShort.Add(1)
	case errors.Is(err, wire.ErrControlPacket):
		r.droppedControl.Add(1)
	case errors.Is(err, wire.ErrInvalidChannel):
		r.droppedInvalidChannel.Add(1)
	case errors.Is(err, wire.ErrInvalidMarker):
		r.droppedInvalidMarker.Add(1)
	default:
		r.droppedForeign.Add(1)
	}
}

// GetTypedStats returns a snapshot of the service counters. It does not take
// the inbox lock and may be called from a visit function.
func (c *Channeled) GetTypedStats() Stats {
	return Stats{
		PacketsSent:   c.sent.packets.Load(),
		FragmentsSent: c.sent.fragments.Load(),
		SendFailures:  c.sent.failures.Load(),

		PacketsReceived:    c.recv.packets.Load(),
		FragmentsReceived:  c.recv.fragments.Load(),
		PacketsReassembled: c.recv.reassembled.Load(),

		DroppedShort:          c.recv.droppedShort.Load(),
		DroppedControl:        c.recv.droppedControl.Load(),
		DroppedForeign:        c.recv.droppedForeign.Load(),
		DroppedInvalidChannel: c.recv.droppedInvalidChannel.Load(),
		DroppedInvalidMarker:  c.recv.droppedInvalidMarker.Load(),
		DroppedOrphanFinal:    c.recv.droppedOrphan.Load(),
		DroppedTypeMismatch:   c.recv.droppedTypeMismatch.Load(),

		InboxDepth:          int(c.gauges.inboxDepth.Load()),
		OpenFragmentBuffers: int(c.gauges.openBuffers.Load()),
		KnownPeers:          len(c.Peers()),
	}
}
