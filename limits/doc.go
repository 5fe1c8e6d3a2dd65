// Package limits provides the Tox custom packet size limit and the size check
// shared by the channel layer, the transports and the simulation.
//
// MaxCustomPacketSize (1373 bytes) is the largest lossy or lossless custom
// packet the Tox transport accepts, including its first (packet id) byte.
// Transports may be configured with a smaller limit, so callers validate
// against the limit the transport reports:
//
//	err := limits.ValidateMessageSize(raw, transport.MaxCustomPacketSize())
//	if errors.Is(err, limits.ErrMessageTooLarge) {
//	    // the transport would reject this packet
//	}
//
// # Error Types
//
//   - ErrMessageEmpty: returned when an empty or nil buffer is provided
//   - ErrMessageTooLarge: returned when a buffer exceeds the specified limit
package limits
