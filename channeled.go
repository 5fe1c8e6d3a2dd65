package toxnet

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/opd-ai/toxnet/engine"
	"github.com/opd-ai/toxnet/inbox"
	"github.com/opd-ai/toxnet/interfaces"
	"github.com/opd-ai/toxnet/limits"
	"github.com/opd-ai/toxnet/reassembly"
	"github.com/opd-ai/toxnet/wire"
	"github.com/sirupsen/logrus"
)

const (
	// ServiceName is the engine service name of Channeled.
	ServiceName = "ToxNetServiceChanneled"

	// PullTaskName is the name of the per-tick ingestion task.
	PullTaskName = "ToxNetChanneled::pull_fresh_packages"

	// TransportIterateTask is the task that pumps the Tox network. Ingestion
	// runs after it when it is registered.
	TransportIterateTask = "ToxService::iterate"

	// SceneTickTask is the consumer task ingestion runs before when registered.
	SceneTickTask = "SceneCollection::scene_tick"
)

var (
	// ErrInvalidChannel is returned for channel ids of MaxChannels and above.
	ErrInvalidChannel = wire.ErrInvalidChannel

	// ErrEmptyPacket is returned when sending nil or empty data.
	ErrEmptyPacket = limits.ErrMessageEmpty

	// ErrPacketTooLarge is returned by SendPacket for data above GetMaxPacketSize.
	ErrPacketTooLarge = limits.ErrMessageTooLarge

	// ErrChannelNotLossless is returned by SendPacketLarge on lossy channels.
	ErrChannelNotLossless = errors.New("large packets require a lossless channel")

	// ErrNoTransport is returned when constructing or enabling without a transport.
	ErrNoTransport = errors.New("no custom packet transport")
)

// VisitFunc receives one buffered packet; returning true removes it.
type VisitFunc = inbox.VisitFunc

// Channeled provides channeled, fragmenting packet transport on top of a Tox
// custom packet transport.
type Channeled struct {
	transport             interfaces.ICustomPacketTransport
	channelTypes          [wire.MaxChannels]wire.ChannelType
	resetFragmentsOnClear bool

	mu          sync.Mutex
	inbox       *inbox.Inbox
	reassembler *reassembly.Reassembler

	// peersMu guards peers and removed. It is never held together with mu.
	peersMu sync.Mutex
	peers   map[uint32]struct{}
	removed map[uint32]struct{}

	sendMu    sync.Mutex
	sendLocks map[sendKey]*sync.Mutex

	recv   receiveCounters
	sent   sendCounters
	gauges gauges
}

type sendKey struct {
	peer    uint32
	channel wire.ChannelID
}

// NewChanneled creates the channel multiplexer. Without options every channel
// is lossless.
func NewChanneled(transport interfaces.ICustomPacketTransport, opts ...Option) (*Channeled, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}

	c := &Channeled{
		transport:   transport,
		inbox:       inbox.New(),
		reassembler: reassembly.New(),
		peers:       make(map[uint32]struct{}),
		removed:     make(map[uint32]struct{}),
		sendLocks:   make(map[sendKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}

	for ch, t := range c.channelTypes {
		if !c.GetSupportedChannelType(t) {
			return nil, fmt.Errorf("channel %d: unsupported channel type %d", ch, t)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewChanneled",
		"lossy_channels":  c.lossyChannels(),
		"max_packet_size": c.GetMaxPacketSize(),
	}).Info("Created channeled packet service")

	return c, nil
}

func (c *Channeled) lossyChannels() []int {
	var lossy []int
	for ch, t := range c.channelTypes {
		if t == wire.ChannelLossy {
			lossy = append(lossy, ch)
		}
	}
	return lossy
}

// Name implements engine.Service.
func (c *Channeled) Name() string {
	return ServiceName
}

// Enable implements engine.Service. It discards packets buffered while the
// service was disabled and registers the ingestion task.
func (c *Channeled) Enable(_ *engine.Engine, tasks *[]engine.TaskInfo) error {
	if c.transport == nil {
		return ErrNoTransport
	}

	c.mu.Lock()
	c.inbox.Clear()
	c.unlock()

	*tasks = append(*tasks, *engine.NewTask(PullTaskName).
		Fn(func(*engine.Engine) { c.PullFreshPackets() }).
		Succeed(TransportIterateTask).
		Precede(SceneTickTask))

	logrus.WithFields(logrus.Fields{
		"function": "Channeled.Enable",
		"task":     PullTaskName,
	}).Info("Channeled packet service enabled")
	return nil
}

// Disable implements engine.Service. Buffered packets and open fragment
// buffers are discarded.
func (c *Channeled) Disable(_ *engine.Engine) {
	c.mu.Lock()
	defer c.unlock()

	c.inbox.Clear()
	c.reassembler.ResetAll()

	logrus.WithFields(logrus.Fields{
		"function": "Channeled.Disable",
	}).Info("Channeled packet service disabled")
}

// GetMaxChannels returns the number of channels, always wire.MaxChannels.
func (c *Channeled) GetMaxChannels() int {
	return wire.MaxChannels
}

// GetSupportedChannelType reports whether t can be configured. Both lossy and
// lossless channels are supported.
func (c *Channeled) GetSupportedChannelType(t wire.ChannelType) bool {
	return t == wire.ChannelLossless || t == wire.ChannelLossy
}

// GetChannelType returns the configured type of channel.
func (c *Channeled) GetChannelType(channel wire.ChannelID) (wire.ChannelType, error) {
	if !channel.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return c.channelTypes[channel], nil
}

// GetMaxPacketSize returns the payload capacity of one packet: the transport's
// custom packet limit minus the channel header.
func (c *Channeled) GetMaxPacketSize() int {
	return max(c.transport.MaxCustomPacketSize()-wire.HeaderSize, 0)
}

func validateSend(channel wire.ChannelID, data []byte) error {
	if !channel.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if len(data) == 0 {
		return ErrEmptyPacket
	}
	return nil
}

// lockSend serializes sends on (peer, channel) and returns the unlock func.
func (c *Channeled) lockSend(peer uint32, channel wire.ChannelID) func() {
	key := sendKey{peer, channel}

	c.sendMu.Lock()
	l, ok := c.sendLocks[key]
	if !ok {
		l = new(sync.Mutex)
		c.sendLocks[key] = l
	}
	c.sendMu.Unlock()

	l.Lock()
	return l.Unlock
}

// SendPacket sends data as one standalone packet using the channel's
// configured delivery class. On lossless channels it waits for a large packet
// in flight to the same peer and channel to finish.
func (c *Channeled) SendPacket(peer uint32, channel wire.ChannelID, data []byte) error {
	if err := validateSend(channel, data); err != nil {
		return err
	}
	if c.channelTypes[channel] == wire.ChannelLossless {
		defer c.lockSend(peer, channel)()
	}
	return c.sendStandalone(peer, channel, data)
}

func (c *Channeled) sendStandalone(peer uint32, channel wire.ChannelID, data []byte) error {
	if err := limits.ValidateMessageSize(data, c.GetMaxPacketSize()); err != nil {
		return fmt.Errorf("channel %d: %w", channel, err)
	}

	typ := c.channelTypes[channel]
	raw, err := wire.Frame(wire.Header{Channel: channel, Type: typ}, data)
	if err != nil {
		return err
	}

	if typ == wire.ChannelLossless {
		err = c.transport.SendLosslessPacket(peer, raw)
	} else {
		err = c.transport.SendLossyPacket(peer, raw)
	}
	if err != nil {
		c.sent.failures.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Channeled.SendPacket",
			"peer":     peer,
			"channel":  channel,
			"type":     typ.String(),
			"size":     len(data),
			"error":    err.Error(),
		}).Warn("Failed to send packet")
		return fmt.Errorf("send to peer %d on channel %d: %w", peer, channel, err)
	}

	c.sent.packets.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Channeled.SendPacket",
		"peer":     peer,
		"channel":  channel,
		"size":     len(data),
	}).Trace("Packet sent")
	return nil
}

// SendPacketLarge sends data of any size on a lossless channel. Data that fits
// a single packet is sent standalone; larger data is split into fragments of
// GetMaxPacketSize bytes. The first failing fragment aborts the transfer;
// fragments already sent are not retracted, so the receiver keeps an open
// buffer until that channel is reset. Other sends to the same peer and channel
// wait until the whole transfer is on the wire.
func (c *Channeled) SendPacketLarge(peer uint32, channel wire.ChannelID, data []byte) error {
	if err := validateSend(channel, data); err != nil {
		return err
	}
	if c.channelTypes[channel] != wire.ChannelLossless {
		return fmt.Errorf("%w: channel %d is %s", ErrChannelNotLossless, channel, c.channelTypes[channel])
	}

	defer c.lockSend(peer, channel)()

	chunkSize := c.GetMaxPacketSize()
	if len(data) <= chunkSize {
		return c.sendStandalone(peer, channel, data)
	}

	frags, err := reassembly.Split(data, chunkSize)
	if err != nil {
		return err
	}

	for i, f := range frags {
		raw, err := wire.Frame(wire.Header{Channel: channel, Type: wire.ChannelLossless, Marker: f.Marker}, f.Payload)
		if err != nil {
			return err
		}
		if err := c.transport.SendLosslessPacket(peer, raw); err != nil {
			c.sent.failures.Add(1)
			logrus.WithFields(logrus.Fields{
				"function":  "Channeled.SendPacketLarge",
				"peer":      peer,
				"channel":   channel,
				"fragment":  i + 1,
				"fragments": len(frags),
				"error":     err.Error(),
			}).Error("Failed to send partial large packet")
			return fmt.Errorf("send fragment %d/%d to peer %d on channel %d: %w", i+1, len(frags), peer, channel, err)
		}
		c.sent.fragments.Add(1)
	}

	c.sent.packets.Add(1)
	logrus.WithFields(logrus.Fields{
		"function":  "Channeled.SendPacketLarge",
		"peer":      peer,
		"channel":   channel,
		"size":      len(data),
		"fragments": len(frags),
	}).Debug("Large packet sent")
	return nil
}

// BroadcastPacket sends data on channel to every known peer. Lossless
// channels accept data of any size. Every peer is attempted; the failures are
// returned together.
func (c *Channeled) BroadcastPacket(channel wire.ChannelID, data []byte) error {
	if err := validateSend(channel, data); err != nil {
		return err
	}

	peers := c.Peers()

	var errs error
	for _, peer := range peers {
		var err error
		if c.channelTypes[channel] == wire.ChannelLossless {
			err = c.SendPacketLarge(peer, channel, data)
		} else {
			err = c.SendPacket(peer, channel, data)
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// PullFreshPackets drains the transport's receive queues for every known peer,
// decodes the packets and moves completed payloads into the inbox. It is the
// body of the per-tick ingestion task.
func (c *Channeled) PullFreshPackets() {
	peers := c.Peers()

	c.mu.Lock()
	defer c.unlock()

	for _, peer := range peers {
		for _, raw := range c.transport.DrainLossyPackets(peer) {
			c.ingestLocked(peer, raw, wire.ChannelLossy)
		}
		for _, raw := range c.transport.DrainLosslessPackets(peer) {
			c.ingestLocked(peer, raw, wire.ChannelLossless)
		}
	}
}

func (c *Channeled) ingestLocked(peer uint32, raw []byte, class wire.ChannelType) {
	h, payload, err := wire.Decode(raw)
	if err != nil {
		c.recv.countDecodeError(err)
		logrus.WithFields(logrus.Fields{
			"function": "Channeled.PullFreshPackets",
			"peer":     peer,
			"size":     len(raw),
			"class":    class.String(),
			"error":    err.Error(),
		}).Debug("Dropping malformed packet")
		return
	}
	if h.Type != class {
		c.recv.droppedTypeMismatch.Add(1)
		return
	}

	if h.Marker == wire.MarkerStandalone {
		c.inbox.Push(peer, h.Channel, payload)
		c.recv.packets.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Channeled.PullFreshPackets",
			"peer":     peer,
			"channel":  h.Channel,
			"size":     len(payload),
		}).Trace("Got packet")
		return
	}

	c.recv.fragments.Add(1)
	packet, done, err := c.reassembler.Push(peer, h.Channel, h.Marker, payload)
	if err != nil {
		if errors.Is(err, reassembly.ErrOrphanFinal) {
			c.recv.droppedOrphan.Add(1)
		}
		return
	}
	if done {
		c.inbox.Push(peer, h.Channel, packet)
		c.recv.reassembled.Add(1)
	}
}

// ForEachPacket visits every buffered packet, peers in ascending order and
// channels in ascending order, packets in arrival order. It returns the number
// of packets visited.
func (c *Channeled) ForEachPacket(visit VisitFunc) int {
	c.mu.Lock()
	defer c.unlock()
	return c.inbox.ForEach(visit)
}

// ForEachPacketPeer visits the packets buffered for peer.
func (c *Channeled) ForEachPacketPeer(peer uint32, visit VisitFunc) int {
	c.mu.Lock()
	defer c.unlock()
	return c.inbox.ForEachPeer(peer, visit)
}

// ForEachPacketPeerChannel visits the packets buffered for peer on channel.
// Invalid channels visit nothing.
func (c *Channeled) ForEachPacketPeerChannel(peer uint32, channel wire.ChannelID, visit VisitFunc) int {
	c.mu.Lock()
	defer c.unlock()
	return c.inbox.ForEachPeerChannel(peer, channel, visit)
}

// ClearPackets discards every completed packet. Open fragment buffers are
// kept unless the service was created with WithResetFragmentsOnClear(true).
func (c *Channeled) ClearPackets() {
	c.mu.Lock()
	defer c.unlock()

	c.inbox.Clear()
	if c.resetFragmentsOnClear {
		c.reassembler.ResetAll()
	}
}

// ResetChannel discards the open fragment buffer of (peer, channel).
func (c *Channeled) ResetChannel(peer uint32, channel wire.ChannelID) error {
	if !channel.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	c.mu.Lock()
	defer c.unlock()
	c.reassembler.Reset(peer, channel)
	return nil
}

// ResetFragments discards every open fragment buffer.
func (c *Channeled) ResetFragments() {
	c.mu.Lock()
	defer c.unlock()
	c.reassembler.ResetAll()
}

// AddPeer adds peer to the set of peers polled every tick. It undoes an
// earlier RemovePeer.
func (c *Channeled) AddPeer(peer uint32) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()

	c.peers[peer] = struct{}{}
	delete(c.removed, peer)
}

// RemovePeer stops polling peer and discards its open fragment buffers. The
// peer stays excluded even while the transport lists it as a friend, until
// AddPeer is called again. Completed packets stay in the inbox until drained.
func (c *Channeled) RemovePeer(peer uint32) {
	c.peersMu.Lock()
	delete(c.peers, peer)
	c.removed[peer] = struct{}{}
	c.peersMu.Unlock()

	c.mu.Lock()
	defer c.unlock()
	c.reassembler.ResetPeer(peer)
}

// Peers returns the known peers in ascending order, including the friends of
// a transport that implements interfaces.IFriendLister.
func (c *Channeled) Peers() []uint32 {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()

	lister, ok := c.transport.(interfaces.IFriendLister)
	if !ok {
		return slices.Sorted(maps.Keys(c.peers))
	}

	set := maps.Clone(c.peers)
	for _, id := range lister.FriendIDs() {
		if _, gone := c.removed[id]; !gone {
			set[id] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// unlock publishes the inbox and fragment buffer sizes and releases mu.
func (c *Channeled) unlock() {
	c.gauges.inboxDepth.Store(int64(c.inbox.Len()))
	c.gauges.openBuffers.Store(int64(c.reassembler.OpenCount()))
	c.mu.Unlock()
}
