// Package testing provides an in-memory custom packet transport for
// deterministic testing of the channel layer.
//
// # Overview
//
// SimulatedTransport mirrors the contract of a real Tox custom packet transport
// without any network: packets sent to a linked friend are appended to the
// remote endpoint's receive queues immediately and in send order. Every send is
// recorded in a delivery log so tests can inspect the exact bytes that went out.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): endpoints are linked in memory. Used for unit
//     and integration testing.
//
//   - Real (real package): packets travel over an interfaces.INetworkTransport
//     such as the WebSocket link.
//
// Both implement interfaces.ICustomPacketTransport and can be selected through
// the factory package.
//
// # Usage
//
//	config := &interfaces.TransportConfig{
//	    UseSimulation:  true,
//	    NetworkTimeout: 1000,
//	    MaxPacketSize:  limits.MaxCustomPacketSize,
//	}
//	alice := testing.NewSimulatedTransport(config)
//	bob := testing.NewSimulatedTransport(config)
//
//	// alice knows bob as friend 0, bob knows alice as friend 0
//	testing.Link(alice, 0, bob, 0)
//
//	_ = alice.SendLosslessPacket(0, []byte{161, 0, 'h', 'i'})
//	packets := bob.DrainLosslessPackets(0)
//
// # Fault Injection
//
//   - FailLosslessAfter(n): the next n lossless sends succeed, later ones fail
//   - SetLossyDrop(true): lossy sends report success but are never delivered
//   - Inject: places raw bytes, valid or not, into the receive queues
//
// # Logging
//
// All simulation operations log a warning marker, "SIMULATION FUNCTION - NOT A
// REAL OPERATION", when the transport is created so simulated traffic is never
// mistaken for real traffic in logs.
//
// # Thread Safety
//
// SimulatedTransport is safe for concurrent use.
package testing
