// Package real provides the network-backed custom packet transport.
//
// CustomPacketTransport implements interfaces.ICustomPacketTransport on top
// of any interfaces.INetworkTransport. It validates the packet id range of
// each delivery class, retries lossless sends and sorts inbound packets into
// per-friend lossy and lossless queues that the channeled service drains
// every tick:
//
//	┌─────────────────────────────────────────┐
//	│          CustomPacketTransport          │
//	│  ┌─────────────┐  ┌─────────────────┐   │
//	│  │ per-friend  │  │   Retry Logic   │   │
//	│  │   queues    │  │ (lossless only) │   │
//	│  └─────────────┘  └─────────────────┘   │
//	└───────────────┬─────────────────────────┘
//	                │
//	                ▼
//	┌─────────────────────────────────────────┐
//	│      INetworkTransport (abstraction)    │
//	│        WebSocketTransport, ...          │
//	└─────────────────────────────────────────┘
//
// # Usage
//
//	link := real.NewWebSocketTransport(selfID, 5*time.Second, limits.MaxCustomPacketSize)
//	http.Handle(real.WebSocketPath, link.Handler())
//
//	transport, err := real.NewCustomPacketTransport(link, &interfaces.TransportConfig{
//	    NetworkTimeout: 5000,
//	    RetryAttempts:  3,
//	    MaxPacketSize:  limits.MaxCustomPacketSize,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := transport.AddFriend(friendID, friendAddr); err != nil {
//	    return err
//	}
//
// # Retry Behavior
//
// Lossless sends are attempted up to RetryAttempts times with a linear
// backoff of 500ms per attempt. Lossy sends are attempted once; a lost lossy
// packet is within its contract.
//
// # Thread Safety
//
// All methods on CustomPacketTransport and WebSocketTransport are safe for
// concurrent use.
//
// # Testing Support
//
// Retry timing can be made deterministic with SetSleeper:
//
//	type mockSleeper struct {
//	    sleepCalls []time.Duration
//	}
//
//	func (m *mockSleeper) Sleep(d time.Duration) {
//	    m.sleepCalls = append(m.sleepCalls, d)
//	}
//
//	transport.SetSleeper(&mockSleeper{})
package real
