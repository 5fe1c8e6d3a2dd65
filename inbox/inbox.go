// Package inbox buffers completed channel packets per peer and channel until a
// consumer drains them.
//
// Packets are kept in arrival order inside each (peer, channel) bucket. Buckets
// are visited in ascending peer order, then ascending channel order. Entries are
// only removed when a visit function asks for it; nothing expires and there is
// no capacity bound, so a consumer that never drains grows the inbox without
// limit.
//
// An Inbox is not safe for concurrent use. Visit functions must not call back
// into the Inbox they are visiting.
package inbox

import (
	"maps"
	"slices"

	"github.com/opd-ai/toxnet/wire"
)

// VisitFunc receives one buffered packet. Returning true removes the packet,
// returning false keeps it for a later pass. data must not be modified.
type VisitFunc func(peer uint32, channel wire.ChannelID, data []byte) bool

// Inbox holds completed packets keyed by peer and channel.
type Inbox struct {
	peers map[uint32]*[wire.MaxChannels][][]byte
	size  int
}

// New creates an empty Inbox.
func New() *Inbox {
	return &Inbox{
		peers: make(map[uint32]*[wire.MaxChannels][][]byte),
	}
}

// Push appends a completed packet to the (peer, channel) bucket. Invalid
// channels are ignored and reported as false.
func (in *Inbox) Push(peer uint32, channel wire.ChannelID, data []byte) bool {
	if !channel.Valid() {
		return false
	}
	chans, ok := in.peers[peer]
	if !ok {
		chans = new([wire.MaxChannels][][]byte)
		in.peers[peer] = chans
	}
	chans[channel] = append(chans[channel], data)
	in.size++
	return true
}

// ForEach visits every buffered packet and returns the number visited.
func (in *Inbox) ForEach(visit VisitFunc) int {
	count := 0
	for _, peer := range slices.Sorted(maps.Keys(in.peers)) {
		count += in.ForEachPeer(peer, visit)
	}
	return count
}

// ForEachPeer visits every packet buffered for peer and returns the number visited.
func (in *Inbox) ForEachPeer(peer uint32, visit VisitFunc) int {
	chans, ok := in.peers[peer]
	if !ok {
		return 0
	}

	count := 0
	for channel := range chans {
		count += in.drain(peer, chans, wire.ChannelID(channel), visit)
	}
	in.prune(peer, chans)
	return count
}

// ForEachPeerChannel visits the packets buffered for (peer, channel) and
// returns the number visited.
func (in *Inbox) ForEachPeerChannel(peer uint32, channel wire.ChannelID, visit VisitFunc) int {
	if !channel.Valid() {
		return 0
	}
	chans, ok := in.peers[peer]
	if !ok {
		return 0
	}

	count := in.drain(peer, chans, channel, visit)
	in.prune(peer, chans)
	return count
}

// drain filters one bucket in place, keeping the entries visit returned false for.
func (in *Inbox) drain(peer uint32, chans *[wire.MaxChannels][][]byte, channel wire.ChannelID, visit VisitFunc) int {
	queue := chans[channel]
	if len(queue) == 0 {
		return 0
	}

	kept := queue[:0]
	for _, data := range queue {
		if !visit(peer, channel, data) {
			kept = append(kept, data)
		}
	}

	removed := len(queue) - len(kept)
	clear(queue[len(kept):])
	in.size -= removed

	if len(kept) == 0 {
		chans[channel] = nil
	} else {
		chans[channel] = kept
	}
	return len(queue)
}

func (in *Inbox) prune(peer uint32, chans *[wire.MaxChannels][][]byte) {
	for _, queue := range chans {
		if len(queue) > 0 {
			return
		}
	}
	delete(in.peers, peer)
}

// Clear discards every buffered packet.
func (in *Inbox) Clear() {
	in.peers = make(map[uint32]*[wire.MaxChannels][][]byte)
	in.size = 0
}

// ClearPeer discards the packets buffered for peer.
func (in *Inbox) ClearPeer(peer uint32) {
	chans, ok := in.peers[peer]
	if !ok {
		return
	}
	for _, queue := range chans {
		in.size -= len(queue)
	}
	delete(in.peers, peer)
}

// Len returns the total number of buffered packets.
func (in *Inbox) Len() int {
	return in.size
}

// LenPeer returns the number of packets buffered for peer.
func (in *Inbox) LenPeer(peer uint32) int {
	chans, ok := in.peers[peer]
	if !ok {
		return 0
	}
	n := 0
	for _, queue := range chans {
		n += len(queue)
	}
	return n
}

// LenPeerChannel returns the number of packets buffered for (peer, channel).
func (in *Inbox) LenPeerChannel(peer uint32, channel wire.ChannelID) int {
	if !channel.Valid() {
		return 0
	}
	if chans, ok := in.peers[peer]; ok {
		return len(chans[channel])
	}
	return 0
}
