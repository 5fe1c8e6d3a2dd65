// Package interfaces defines the transport abstractions the channel layer is
// built on.
//
// # Core Interfaces
//
// [ICustomPacketTransport] is the Tox side of the channel layer. It sends raw
// lossy and lossless custom packets to a friend and hands out the packets that
// arrived since the previous drain, in arrival order:
//
//	if err := transport.SendLosslessPacket(friendID, raw); err != nil {
//	    // friend offline, queue full, packet too long...
//	}
//	for _, raw := range transport.DrainLosslessPackets(friendID) {
//	    // decode and dispatch
//	}
//
// Implementations must deliver lossless packets from one friend in send order.
// Lossy packets carry no ordering or delivery guarantee.
//
// [IFriendLister] is implemented by transports that own a friend list. The
// channel layer merges those friends into its known-peer set.
//
// [INetworkTransport] is the link below a custom packet transport: it moves
// opaque byte slices to and from friends and knows nothing about packet ids.
//
// # Configuration
//
// [TransportConfig] holds settings for transport implementations:
//
//	config := &interfaces.TransportConfig{
//	    UseSimulation:  false,
//	    NetworkTimeout: 5000, // milliseconds
//	    RetryAttempts:  3,
//	    MaxPacketSize:  limits.MaxCustomPacketSize,
//	}
//	if err := config.Validate(); err != nil {
//	    log.Fatalf("invalid config: %v", err)
//	}
//
// # Implementation Selection
//
// The factory package creates implementations based on configuration:
//   - UseSimulation=true: SimulatedTransport from the testing package
//   - UseSimulation=false: CustomPacketTransport from the real package
//
// # Thread Safety
//
// All implementations of these interfaces must be safe for concurrent use.
// Receive handlers may be invoked from transport goroutines.
package interfaces
