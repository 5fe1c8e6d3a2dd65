package real

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/toxnet/interfaces"
	"github.com/opd-ai/toxnet/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAddr implements net.Addr for testing
type mockAddr struct {
	network string
	address string
}

func (m *mockAddr) Network() string { return m.network }
func (m *mockAddr) String() string  { return m.address }

// mockSleeper implements Sleeper for testing without actual delays
type mockSleeper struct {
	mu         sync.Mutex
	sleepCalls []time.Duration
}

func (m *mockSleeper) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepCalls = append(m.sleepCalls, d)
}

func (m *mockSleeper) getSleepCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleepCalls...)
}

// mockNetwork implements interfaces.INetworkTransport for testing
type mockNetwork struct {
	mu          sync.Mutex
	friends     map[uint32]net.Addr
	sent        [][]byte
	failures    int // number of SendToFriend calls that fail before succeeding
	sendErr     error
	registerErr error
	closeErr    error
	closed      bool
	handler     interfaces.ReceiveHandler
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{friends: make(map[uint32]net.Addr)}
}

func (m *mockNetwork) SendToFriend(friendID uint32, packet []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return m.sendErr
	}
	m.sent = append(m.sent, append([]byte(nil), packet...))
	return nil
}

func (m *mockNetwork) RegisterFriend(friendID uint32, addr net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.friends[friendID] = addr
	return nil
}

func (m *mockNetwork) OnReceive(handler interfaces.ReceiveHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *mockNetwork) deliver(friendID uint32, packet []byte) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	handler(friendID, packet)
}

func (m *mockNetwork) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeErr
}

func (m *mockNetwork) IsConnected() bool { return true }

func defaultConfig() *interfaces.TransportConfig {
	return &interfaces.TransportConfig{
		NetworkTimeout: 5000,
		RetryAttempts:  3,
		MaxPacketSize:  limits.MaxCustomPacketSize,
	}
}

func newTestTransport(t *testing.T) (*CustomPacketTransport, *mockNetwork, *mockSleeper) {
	t.Helper()
	network := newMockNetwork()
	transport, err := NewCustomPacketTransport(network, defaultConfig())
	require.NoError(t, err)

	sleeper := &mockSleeper{}
	transport.SetSleeper(sleeper)
	require.NoError(t, transport.AddFriend(1, &mockAddr{"tcp", "127.0.0.1:33445"}))
	return transport, network, sleeper
}

func TestNewCustomPacketTransportValidatesConfig(t *testing.T) {
	_, err := NewCustomPacketTransport(newMockNetwork(), &interfaces.TransportConfig{NetworkTimeout: 0, MaxPacketSize: 100})
	assert.ErrorIs(t, err, interfaces.ErrInvalidTimeout)

	_, err = NewCustomPacketTransport(newMockNetwork(), &interfaces.TransportConfig{NetworkTimeout: 10, MaxPacketSize: 2})
	assert.ErrorIs(t, err, interfaces.ErrInvalidPacketSize)
}

func TestInstallsReceiveHandler(t *testing.T) {
	_, network, _ := newTestTransport(t)
	assert.NotNil(t, network.handler)
	assert.False(t, (&CustomPacketTransport{}).IsSimulation())
}

func TestSendValidatesPacketIDRange(t *testing.T) {
	transport, network, _ := newTestTransport(t)

	tests := []struct {
		name     string
		send     func(uint32, []byte) error
		packet   []byte
		wantErr  error
		wantSent bool
	}{
		{"lossless ok", transport.SendLosslessPacket, []byte{161, 0, 1}, nil, true},
		{"lossless control byte", transport.SendLosslessPacket, []byte{160, 0, 1}, nil, true},
		{"lossless with lossy id", transport.SendLosslessPacket, []byte{192, 0, 1}, interfaces.ErrPacketIDOutOfRange, false},
		{"lossy ok", transport.SendLossyPacket, []byte{254, 0, 1}, nil, true},
		{"lossy with 255", transport.SendLossyPacket, []byte{255, 0, 1}, interfaces.ErrPacketIDOutOfRange, false},
		{"lossy with lossless id", transport.SendLossyPacket, []byte{191, 0, 1}, interfaces.ErrPacketIDOutOfRange, false},
		{"empty", transport.SendLossyPacket, nil, limits.ErrMessageEmpty, false},
		{"too large", transport.SendLosslessPacket, append([]byte{161}, make([]byte, limits.MaxCustomPacketSize)...), limits.ErrMessageTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(network.sent)
			err := tt.send(1, tt.packet)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantSent, len(network.sent) > before)
		})
	}
}

func TestSendUnknownFriend(t *testing.T) {
	transport, _, _ := newTestTransport(t)
	assert.ErrorIs(t, transport.SendLosslessPacket(42, []byte{161, 0, 1}), interfaces.ErrFriendNotFound)
	assert.ErrorIs(t, transport.SendLossyPacket(42, []byte{192, 0, 1}), interfaces.ErrFriendNotFound)
}

func TestLosslessRetries(t *testing.T) {
	transport, network, sleeper := newTestTransport(t)
	network.failures = 2
	network.sendErr = errors.New("link down")

	require.NoError(t, transport.SendLosslessPacket(1, []byte{161, 0, 1}))
	assert.Len(t, network.sent, 1)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, sleeper.getSleepCalls())
	assert.Equal(t, int64(1), transport.GetTypedStats().PacketsSent)
}

func TestLosslessGivesUpAfterRetries(t *testing.T) {
	transport, network, sleeper := newTestTransport(t)
	linkErr := errors.New("link down")
	network.failures = 10
	network.sendErr = linkErr

	err := transport.SendLosslessPacket(1, []byte{161, 0, 1})
	assert.ErrorIs(t, err, linkErr)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Len(t, sleeper.getSleepCalls(), 2, "no sleep after the last attempt")
	assert.Equal(t, int64(1), transport.GetTypedStats().SendFailures)
}

func TestLossyIsNotRetried(t *testing.T) {
	transport, network, sleeper := newTestTransport(t)
	network.failures = 1
	network.sendErr = errors.New("link down")

	assert.Error(t, transport.SendLossyPacket(1, []byte{192, 0, 1}))
	assert.Empty(t, sleeper.getSleepCalls())
	assert.Empty(t, network.sent)
}

func TestZeroRetryAttemptsStillSendsOnce(t *testing.T) {
	network := newMockNetwork()
	cfg := defaultConfig()
	cfg.RetryAttempts = 0
	transport, err := NewCustomPacketTransport(network, cfg)
	require.NoError(t, err)
	require.NoError(t, transport.AddFriend(1, &mockAddr{"tcp", "x"}))

	require.NoError(t, transport.SendLosslessPacket(1, []byte{161, 0, 1}))
	assert.Len(t, network.sent, 1)
}

func TestReceiveSortsByClass(t *testing.T) {
	transport, network, _ := newTestTransport(t)

	network.deliver(1, []byte{161, 0, 'a'})
	network.deliver(1, []byte{200, 0, 'b'})
	network.deliver(1, []byte{162, 1, 'c'})
	network.deliver(1, []byte{5, 0, 'x'})   // foreign
	network.deliver(1, nil)                 // empty
	network.deliver(7, []byte{192, 0, 'd'}) // inbound-only friend

	assert.Equal(t, [][]byte{{161, 0, 'a'}, {162, 1, 'c'}}, transport.DrainLosslessPackets(1))
	assert.Equal(t, [][]byte{{200, 0, 'b'}}, transport.DrainLossyPackets(1))
	assert.Empty(t, transport.DrainLosslessPackets(1))

	stats := transport.GetTypedStats()
	assert.Equal(t, int64(4), stats.PacketsReceived)
	assert.Equal(t, int64(2), stats.PacketsRejected)
	assert.Equal(t, 1, stats.LossyQueued)
	assert.Equal(t, []uint32{1, 7}, transport.FriendIDs())

	assert.Equal(t, [][]byte{{192, 0, 'd'}}, transport.DrainLossyPackets(7))
}

func TestAddFriendRegistrationFailure(t *testing.T) {
	network := newMockNetwork()
	network.registerErr = errors.New("unreachable")
	transport, err := NewCustomPacketTransport(network, defaultConfig())
	require.NoError(t, err)

	err = transport.AddFriend(3, &mockAddr{"tcp", "x"})
	assert.Error(t, err)
	assert.Empty(t, transport.FriendIDs())
}

func TestRemoveFriendDropsQueues(t *testing.T) {
	transport, network, _ := newTestTransport(t)
	network.deliver(1, []byte{161, 0, 'a'})

	transport.RemoveFriend(1)
	transport.RemoveFriend(99)
	assert.Empty(t, transport.FriendIDs())
	assert.Empty(t, transport.DrainLosslessPackets(1))
}

func TestSetNetworkTransport(t *testing.T) {
	transport, old, _ := newTestTransport(t)

	next := newMockNetwork()
	require.NoError(t, transport.SetNetworkTransport(next))
	assert.True(t, old.closed)
	assert.NotNil(t, next.handler)

	require.NoError(t, transport.SendLosslessPacket(1, []byte{161, 0, 1}))
	assert.Len(t, next.sent, 1)

	next.closeErr = errors.New("busy")
	assert.Error(t, transport.SetNetworkTransport(newMockNetwork()))
	assert.Error(t, transport.Close(), "old transport kept after failed close")
}
