package testing

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/opd-ai/toxnet/interfaces"
	"github.com/opd-ai/toxnet/limits"
	"github.com/opd-ai/toxnet/wire"
	"github.com/sirupsen/logrus"
)

// ErrInjectedFailure is returned by sends that fail because of fault injection.
var ErrInjectedFailure = errors.New("injected send failure")

// DeliveryRecord represents a send attempt for testing verification
type DeliveryRecord struct {
	FriendID  uint32
	Packet    []byte
	Lossless  bool
	Delivered bool
	Error     error
}

type link struct {
	remote   *SimulatedTransport
	friendID uint32 // how the remote knows us
}

// SimulatedTransport implements interfaces.ICustomPacketTransport in memory.
type SimulatedTransport struct {
	mu     sync.RWMutex
	config *interfaces.TransportConfig

	friends    map[uint32]*link
	lossyIn    map[uint32][][]byte
	losslessIn map[uint32][][]byte

	deliveryLog []DeliveryRecord

	losslessBudget int // remaining successful lossless sends, negative means unlimited
	dropLossy      bool

	packetsReceived int64
}

// NewSimulatedTransport creates a new simulated endpoint. A zero MaxPacketSize
// falls back to limits.MaxCustomPacketSize.
func NewSimulatedTransport(config *interfaces.TransportConfig) *SimulatedTransport {
	if config == nil {
		config = &interfaces.TransportConfig{UseSimulation: true, NetworkTimeout: 1000}
	}
	if config.MaxPacketSize == 0 {
		cfg := *config
		cfg.MaxPacketSize = limits.MaxCustomPacketSize
		config = &cfg
	}

	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function":        "NewSimulatedTransport",
		"max_packet_size": config.MaxPacketSize,
	}).Info("Creating simulated custom packet transport")

	return &SimulatedTransport{
		config:         config,
		friends:        make(map[uint32]*link),
		lossyIn:        make(map[uint32][][]byte),
		losslessIn:     make(map[uint32][][]byte),
		deliveryLog:    make([]DeliveryRecord, 0),
		losslessBudget: -1,
	}
}

// Link connects two endpoints: a knows b as aSeesB and b knows a as bSeesA.
func Link(a *SimulatedTransport, aSeesB uint32, b *SimulatedTransport, bSeesA uint32) {
	a.Connect(aSeesB, b, bSeesA)
	b.Connect(bSeesA, a, aSeesB)
}

// Connect links friendID to a remote endpoint that knows this endpoint as
// remoteFriendID. The link is one-way; use Link for both directions.
func (s *SimulatedTransport) Connect(friendID uint32, remote *SimulatedTransport, remoteFriendID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.friends[friendID] = &link{remote: remote, friendID: remoteFriendID}

	logrus.WithFields(logrus.Fields{
		"function":         "SimulatedTransport.Connect",
		"friend_id":        friendID,
		"remote_friend_id": remoteFriendID,
	}).Debug("Simulated friend linked")
}

// AddFriend registers a friend that has no link. Sends to it fail with
// interfaces.ErrFriendNotConnected, like an offline Tox friend.
func (s *SimulatedTransport) AddFriend(friendID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.friends[friendID]; !ok {
		s.friends[friendID] = &link{}
	}
}

// RemoveFriend forgets a friend and its pending receive queues.
func (s *SimulatedTransport) RemoveFriend(friendID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.friends, friendID)
	delete(s.lossyIn, friendID)
	delete(s.losslessIn, friendID)
}

// FriendIDs implements interfaces.IFriendLister.
func (s *SimulatedTransport) FriendIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint32, 0, len(s.friends))
	for id := range s.friends {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MaxCustomPacketSize implements interfaces.ICustomPacketTransport.
func (s *SimulatedTransport) MaxCustomPacketSize() int {
	return s.config.MaxPacketSize
}

// SendLossyPacket implements interfaces.ICustomPacketTransport.
func (s *SimulatedTransport) SendLossyPacket(friendID uint32, packet []byte) error {
	return s.send(friendID, packet, false)
}

// SendLosslessPacket implements interfaces.ICustomPacketTransport.
func (s *SimulatedTransport) SendLosslessPacket(friendID uint32, packet []byte) error {
	return s.send(friendID, packet, true)
}

func (s *SimulatedTransport) send(friendID uint32, packet []byte, lossless bool) error {
	s.mu.Lock()
	target, err := s.checkSend(friendID, packet, lossless)
	deliver := err == nil && (lossless || !s.dropLossy)

	record := DeliveryRecord{
		FriendID:  friendID,
		Packet:    slices.Clone(packet),
		Lossless:  lossless,
		Delivered: deliver,
		Error:     err,
	}
	s.deliveryLog = append(s.deliveryLog, record)
	s.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "SimulatedTransport.send",
			"friend_id":   friendID,
			"lossless":    lossless,
			"packet_size": len(packet),
			"error":       err.Error(),
		}).Debug("Simulated send rejected")
		return err
	}

	if deliver {
		target.remote.enqueue(target.friendID, slices.Clone(packet), lossless)
	}
	return nil
}

// checkSend validates a send and consumes fault injection budget. Caller holds s.mu.
func (s *SimulatedTransport) checkSend(friendID uint32, packet []byte, lossless bool) (*link, error) {
	if err := limits.ValidateMessageSize(packet, s.config.MaxPacketSize); err != nil {
		return nil, err
	}

	if lossless && !wire.IsLosslessByte(packet[0]) {
		return nil, fmt.Errorf("%w: lossless packet id %d", interfaces.ErrPacketIDOutOfRange, packet[0])
	}
	if !lossless && !wire.IsLossyByte(packet[0]) {
		return nil, fmt.Errorf("%w: lossy packet id %d", interfaces.ErrPacketIDOutOfRange, packet[0])
	}

	target, ok := s.friends[friendID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrFriendNotFound, friendID)
	}
	if target.remote == nil {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrFriendNotConnected, friendID)
	}

	if lossless && s.losslessBudget >= 0 {
		if s.losslessBudget == 0 {
			return nil, ErrInjectedFailure
		}
		s.losslessBudget--
	}
	return target, nil
}

func (s *SimulatedTransport) enqueue(friendID uint32, packet []byte, lossless bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lossless {
		s.losslessIn[friendID] = append(s.losslessIn[friendID], packet)
	} else {
		s.lossyIn[friendID] = append(s.lossyIn[friendID], packet)
	}
	s.packetsReceived++
}

// Inject places raw bytes into the receive queue of friendID without any
// validation, as if the network had delivered them.
func (s *SimulatedTransport) Inject(friendID uint32, packet []byte, lossless bool) {
	s.enqueue(friendID, slices.Clone(packet), lossless)
}

// DrainLossyPackets implements interfaces.ICustomPacketTransport.
func (s *SimulatedTransport) DrainLossyPackets(friendID uint32) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	packets := s.lossyIn[friendID]
	delete(s.lossyIn, friendID)
	return packets
}

// DrainLosslessPackets implements interfaces.ICustomPacketTransport.
func (s *SimulatedTransport) DrainLosslessPackets(friendID uint32) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	packets := s.losslessIn[friendID]
	delete(s.losslessIn, friendID)
	return packets
}

// FailLosslessAfter lets the next n lossless sends succeed and fails every
// later one with ErrInjectedFailure. A negative n removes the limit.
func (s *SimulatedTransport) FailLosslessAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.losslessBudget = n
}

// SetLossyDrop makes lossy sends succeed without delivering anything.
func (s *SimulatedTransport) SetLossyDrop(drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLossy = drop
}

// IsSimulation returns true.
func (s *SimulatedTransport) IsSimulation() bool {
	return true
}

// GetDeliveryLog returns the complete delivery log for test verification
func (s *SimulatedTransport) GetDeliveryLog() []DeliveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.deliveryLog)
}

// ClearDeliveryLog clears the delivery log for test cleanup
func (s *SimulatedTransport) ClearDeliveryLog() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveryLog = s.deliveryLog[:0]
}

// GetTypedStats returns a snapshot of the simulation counters.
func (s *SimulatedTransport) GetTypedStats() interfaces.TransportStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := interfaces.TransportStats{
		IsSimulation:    true,
		FriendCount:     len(s.friends),
		PacketsReceived: s.packetsReceived,
	}
	for _, rec := range s.deliveryLog {
		if rec.Error != nil {
			stats.SendFailures++
		} else {
			stats.PacketsSent++
		}
	}
	for _, q := range s.lossyIn {
		stats.LossyQueued += len(q)
	}
	for _, q := range s.losslessIn {
		stats.LosslessQueued += len(q)
	}
	return stats
}
