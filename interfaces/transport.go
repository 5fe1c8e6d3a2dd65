package interfaces

import (
	"errors"
	"fmt"
	"net"
)

// ICustomPacketTransport sends and receives raw Tox custom packets.
type ICustomPacketTransport interface {
	// SendLossyPacket sends a packet whose first byte is in 192-254
	SendLossyPacket(friendID uint32, packet []byte) error

	// SendLosslessPacket sends a packet whose first byte is in 160-191
	SendLosslessPacket(friendID uint32, packet []byte) error

	// DrainLossyPackets returns and forgets the lossy packets received from friendID
	DrainLossyPackets(friendID uint32) [][]byte

	// DrainLosslessPackets returns and forgets the lossless packets received from friendID
	DrainLosslessPackets(friendID uint32) [][]byte

	// MaxCustomPacketSize returns the largest packet the transport accepts, first byte included
	MaxCustomPacketSize() int
}

// IFriendLister is implemented by transports that know their friends.
type IFriendLister interface {
	// FriendIDs returns the current friend numbers
	FriendIDs() []uint32
}

// ReceiveHandler is invoked for every byte slice a network transport receives.
type ReceiveHandler func(friendID uint32, packet []byte)

// INetworkTransport moves opaque packets between this node and its friends.
type INetworkTransport interface {
	// SendToFriend sends a packet to a registered friend
	SendToFriend(friendID uint32, packet []byte) error

	// RegisterFriend registers a friend's network address
	RegisterFriend(friendID uint32, addr net.Addr) error

	// OnReceive installs the handler for inbound packets
	OnReceive(handler ReceiveHandler)

	// Close shuts down the transport
	Close() error

	// IsConnected returns true if the transport is connected to the network
	IsConnected() bool
}

// Errors shared by transport implementations.
var (
	// ErrFriendNotFound indicates the friend number is unknown to the transport
	ErrFriendNotFound = errors.New("friend not found")

	// ErrFriendNotConnected indicates the friend is known but unreachable
	ErrFriendNotConnected = errors.New("friend not connected")

	// ErrPacketIDOutOfRange indicates the first byte is outside the range of the packet class
	ErrPacketIDOutOfRange = errors.New("packet id out of range")
)

var (
	// ErrInvalidTimeout indicates a non-positive network timeout
	ErrInvalidTimeout = errors.New("network timeout must be positive")

	// ErrInvalidRetryAttempts indicates a negative retry count
	ErrInvalidRetryAttempts = errors.New("retry attempts must not be negative")

	// ErrInvalidPacketSize indicates a packet size too small to carry a channel header and payload
	ErrInvalidPacketSize = errors.New("max packet size too small")
)

// MinPacketSize is the smallest MaxPacketSize that still fits a channel header
// and one payload byte.
const MinPacketSize = 3

// TransportConfig holds configuration for custom packet transports
type TransportConfig struct {
	// UseSimulation determines whether to use simulation or real network
	UseSimulation bool

	// NetworkTimeout sets the timeout for network operations in milliseconds
	NetworkTimeout int

	// RetryAttempts sets the number of attempts for failed link sends
	RetryAttempts int

	// MaxPacketSize is the largest custom packet accepted, first byte included
	MaxPacketSize int
}

// Validate checks the configuration for values no transport can work with.
func (c *TransportConfig) Validate() error {
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.NetworkTimeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRetryAttempts, c.RetryAttempts)
	}
	if c.MaxPacketSize < MinPacketSize {
		return fmt.Errorf("%w: got %d, need at least %d", ErrInvalidPacketSize, c.MaxPacketSize, MinPacketSize)
	}
	return nil
}

// TransportStats is a snapshot of transport counters.
type TransportStats struct {
	IsSimulation    bool
	FriendCount     int
	PacketsSent     int64
	PacketsReceived int64
	SendFailures    int64
	PacketsRejected int64
	LossyQueued     int
	LosslessQueued  int
}
