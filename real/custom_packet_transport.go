package real

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/opd-ai/toxnet/interfaces"
	"github.com/opd-ai/toxnet/limits"
	"github.com/opd-ai/toxnet/wire"
	"github.com/sirupsen/logrus"
)

// Sleeper provides an abstraction over time.Sleep for deterministic testing.
type Sleeper interface {
	// Sleep pauses execution for the specified duration.
	Sleep(d time.Duration)
}

// DefaultSleeper implements Sleeper using the standard library time.Sleep.
type DefaultSleeper struct{}

// Sleep pauses execution for the specified duration using time.Sleep.
func (DefaultSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// CustomPacketTransport implements interfaces.ICustomPacketTransport over a
// network transport.
type CustomPacketTransport struct {
	transport interfaces.INetworkTransport
	config    *interfaces.TransportConfig
	sleeper   Sleeper

	mu sync.RWMutex
	// friendAddrs holds every known friend; inbound-only friends map to nil.
	friendAddrs map[uint32]net.Addr
	lossyIn     map[uint32][][]byte
	losslessIn  map[uint32][][]byte

	packetsSent     int64
	packetsReceived int64
	sendFailures    int64
	packetsRejected int64
}

// NewCustomPacketTransport creates the transport and installs its receive
// handler on transport.
func NewCustomPacketTransport(transport interfaces.INetworkTransport, config *interfaces.TransportConfig) (*CustomPacketTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewCustomPacketTransport",
		"timeout":         config.NetworkTimeout,
		"retries":         config.RetryAttempts,
		"max_packet_size": config.MaxPacketSize,
	}).Info("Creating real custom packet transport")

	t := &CustomPacketTransport{
		transport:   transport,
		config:      config,
		sleeper:     DefaultSleeper{},
		friendAddrs: make(map[uint32]net.Addr),
		lossyIn:     make(map[uint32][][]byte),
		losslessIn:  make(map[uint32][][]byte),
	}
	if transport != nil {
		transport.OnReceive(t.receive)
	}
	return t, nil
}

// SetSleeper sets a custom Sleeper implementation (primarily for testing).
func (t *CustomPacketTransport) SetSleeper(s Sleeper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sleeper = s
}

// MaxCustomPacketSize implements interfaces.ICustomPacketTransport.
func (t *CustomPacketTransport) MaxCustomPacketSize() int {
	return t.config.MaxPacketSize
}

// SendLossyPacket implements interfaces.ICustomPacketTransport. The packet is
// sent once.
func (t *CustomPacketTransport) SendLossyPacket(friendID uint32, packet []byte) error {
	if err := t.validate(packet, wire.IsLossyByte, "lossy"); err != nil {
		return err
	}

	network, err := t.networkFor(friendID)
	if err != nil {
		return err
	}

	if err := network.SendToFriend(friendID, packet); err != nil {
		t.countFailure()
		logrus.WithFields(logrus.Fields{
			"function":    "CustomPacketTransport.SendLossyPacket",
			"friend_id":   friendID,
			"packet_size": len(packet),
			"error":       err.Error(),
		}).Debug("Lossy packet not sent")
		return fmt.Errorf("send lossy packet to friend %d: %w", friendID, err)
	}

	t.countSent()
	return nil
}

// SendLosslessPacket implements interfaces.ICustomPacketTransport. Failed
// sends are retried.
func (t *CustomPacketTransport) SendLosslessPacket(friendID uint32, packet []byte) error {
	if err := t.validate(packet, wire.IsLosslessByte, "lossless"); err != nil {
		return err
	}

	network, err := t.networkFor(friendID)
	if err != nil {
		return err
	}

	return t.attemptDeliveryWithRetries(network, friendID, packet)
}

func (t *CustomPacketTransport) validate(packet []byte, inRange func(byte) bool, class string) error {
	if err := limits.ValidateMessageSize(packet, t.config.MaxPacketSize); err != nil {
		return err
	}
	if !inRange(packet[0]) {
		return fmt.Errorf("%w: %s packet id %d", interfaces.ErrPacketIDOutOfRange, class, packet[0])
	}
	return nil
}

// networkFor checks that friendID is known and a network transport is set.
func (t *CustomPacketTransport) networkFor(friendID uint32) (interfaces.INetworkTransport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.friendAddrs[friendID]; !ok {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrFriendNotFound, friendID)
	}
	if t.transport == nil {
		return nil, fmt.Errorf("%w: no network transport", interfaces.ErrFriendNotConnected)
	}
	return t.transport, nil
}

// attemptDeliveryWithRetries tries to deliver a packet with linear backoff.
func (t *CustomPacketTransport) attemptDeliveryWithRetries(network interfaces.INetworkTransport, friendID uint32, packet []byte) error {
	attempts := max(t.config.RetryAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := network.SendToFriend(friendID, packet)
		if err == nil {
			t.countSent()
			logrus.WithFields(logrus.Fields{
				"function":    "CustomPacketTransport.SendLosslessPacket",
				"friend_id":   friendID,
				"packet_size": len(packet),
				"attempt":     attempt + 1,
			}).Trace("Lossless packet sent")
			return nil
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"function":  "CustomPacketTransport.SendLosslessPacket",
			"friend_id": friendID,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		}).Warn("Lossless send attempt failed, retrying")
		t.waitBeforeRetry(attempt, attempts)
	}

	t.countFailure()
	logrus.WithFields(logrus.Fields{
		"function":  "CustomPacketTransport.SendLosslessPacket",
		"friend_id": friendID,
		"attempts":  attempts,
		"error":     lastErr.Error(),
	}).Error("All delivery attempts failed")

	return fmt.Errorf("failed to deliver packet after %d attempts: %w", attempts, lastErr)
}

func (t *CustomPacketTransport) waitBeforeRetry(attempt, attempts int) {
	if attempt >= attempts-1 {
		return
	}
	t.mu.RLock()
	sleeper := t.sleeper
	t.mu.RUnlock()
	sleeper.Sleep(time.Duration(500*(attempt+1)) * time.Millisecond)
}

// receive sorts an inbound packet into the queue of its delivery class.
func (t *CustomPacketTransport) receive(friendID uint32, packet []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case len(packet) == 0 || len(packet) > t.config.MaxPacketSize:
		t.packetsRejected++
		return
	case wire.IsLosslessByte(packet[0]):
		t.losslessIn[friendID] = append(t.losslessIn[friendID], packet)
	case wire.IsLossyByte(packet[0]):
		t.lossyIn[friendID] = append(t.lossyIn[friendID], packet)
	default:
		t.packetsRejected++
		logrus.WithFields(logrus.Fields{
			"function":  "CustomPacketTransport.receive",
			"friend_id": friendID,
			"packet_id": packet[0],
		}).Debug("Ignoring packet outside custom packet ranges")
		return
	}

	if _, known := t.friendAddrs[friendID]; !known {
		t.friendAddrs[friendID] = nil
	}
	t.packetsReceived++
}

// DrainLossyPackets implements interfaces.ICustomPacketTransport.
func (t *CustomPacketTransport) DrainLossyPackets(friendID uint32) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	packets := t.lossyIn[friendID]
	delete(t.lossyIn, friendID)
	return packets
}

// DrainLosslessPackets implements interfaces.ICustomPacketTransport.
func (t *CustomPacketTransport) DrainLosslessPackets(friendID uint32) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	packets := t.losslessIn[friendID]
	delete(t.losslessIn, friendID)
	return packets
}

// FriendIDs implements interfaces.IFriendLister.
func (t *CustomPacketTransport) FriendIDs() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.friendAddrs))
}

// AddFriend registers a friend's network address with the network transport.
func (t *CustomPacketTransport) AddFriend(friendID uint32, addr net.Addr) error {
	logrus.WithFields(logrus.Fields{
		"function":  "CustomPacketTransport.AddFriend",
		"friend_id": friendID,
		"address":   addr.String(),
	}).Info("Registering friend address")

	t.mu.RLock()
	transport := t.transport
	t.mu.RUnlock()

	// registering may dial, so it runs unlocked
	if transport != nil {
		if err := transport.RegisterFriend(friendID, addr); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "CustomPacketTransport.AddFriend",
				"friend_id": friendID,
				"error":     err.Error(),
			}).Error("Failed to register friend with transport")
			return fmt.Errorf("failed to register friend with transport: %w", err)
		}
	}

	t.mu.Lock()
	t.friendAddrs[friendID] = addr
	t.mu.Unlock()
	return nil
}

// RemoveFriend forgets a friend and its queued packets. Unknown friends are
// ignored.
func (t *CustomPacketTransport) RemoveFriend(friendID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.friendAddrs, friendID)
	delete(t.lossyIn, friendID)
	delete(t.losslessIn, friendID)

	logrus.WithFields(logrus.Fields{
		"function":          "CustomPacketTransport.RemoveFriend",
		"friend_id":         friendID,
		"remaining_friends": len(t.friendAddrs),
	}).Info("Friend removed")
}

// SetNetworkTransport replaces the network transport. The old transport is
// closed first; if that fails the old transport stays in place.
func (t *CustomPacketTransport) SetNetworkTransport(transport interfaces.INetworkTransport) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.transport != nil {
		if err := t.transport.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "CustomPacketTransport.SetNetworkTransport",
				"error":    err.Error(),
			}).Error("Failed to close old transport")
			return fmt.Errorf("failed to close existing transport: %w", err)
		}
	}

	t.transport = transport
	if transport != nil {
		transport.OnReceive(t.receive)
	}
	return nil
}

// Close closes the network transport.
func (t *CustomPacketTransport) Close() error {
	t.mu.RLock()
	transport := t.transport
	t.mu.RUnlock()

	if transport == nil {
		return nil
	}
	return transport.Close()
}

// IsSimulation returns false.
func (t *CustomPacketTransport) IsSimulation() bool {
	return false
}

func (t *CustomPacketTransport) countSent() {
	t.mu.Lock()
	t.packetsSent++
	t.mu.Unlock()
}

func (t *CustomPacketTransport) countFailure() {
	t.mu.Lock()
	t.sendFailures++
	t.mu.Unlock()
}

// GetTypedStats returns a snapshot of the transport counters.
func (t *CustomPacketTransport) GetTypedStats() interfaces.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := interfaces.TransportStats{
		IsSimulation:    false,
		FriendCount:     len(t.friendAddrs),
		PacketsSent:     t.packetsSent,
		PacketsReceived: t.packetsReceived,
		SendFailures:    t.sendFailures,
		PacketsRejected: t.packetsRejected,
	}
	for _, q := range t.lossyIn {
		stats.LossyQueued += len(q)
	}
	for _, q := range t.losslessIn {
		stats.LosslessQueued += len(q)
	}
	return stats
}
