// Package factory creates custom packet transports.
//
// The factory hides the choice between the in-memory simulation and the
// network-backed transport, so services such as toxnet.Channeled are built
// the same way in tests and in production.
//
// # Configuration
//
// Defaults can be overridden with environment variables:
//   - TOX_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - TOX_NETWORK_TIMEOUT: integer milliseconds for network timeout
//   - TOX_RETRY_ATTEMPTS: integer number of lossless send attempts
//   - TOX_MAX_PACKET_SIZE: largest custom packet in bytes, first byte included
//
// Values that do not parse or fall outside their bounds are logged and
// ignored.
//
// # Usage
//
//	f := factory.NewTransportFactory()
//
//	transport, err := f.CreateTransport(real.NewWebSocketTransport(selfID, 5*time.Second, limits.MaxCustomPacketSize))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// or, in tests
//	sim := f.CreateSimulationForTesting(factory.WithMaxPacketSize(202))
//
// # Mode Switching
//
//	f.SwitchToSimulation()
//	f.SwitchToReal()
package factory
