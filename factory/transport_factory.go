package factory

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/opd-ai/toxnet/interfaces"
	"github.com/opd-ai/toxnet/limits"
	"github.com/opd-ai/toxnet/real"
	"github.com/opd-ai/toxnet/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinNetworkTimeout is the minimum allowed network timeout in milliseconds.
	MinNetworkTimeout = 100
	// MaxNetworkTimeout is the maximum allowed network timeout in milliseconds (10 minutes).
	MaxNetworkTimeout = 600000
	// MinRetryAttempts is the minimum allowed retry attempts.
	MinRetryAttempts = 0
	// MaxRetryAttempts is the maximum allowed retry attempts.
	MaxRetryAttempts = 100
)

// ErrNoNetwork is returned when a real transport is requested without a
// network transport.
var ErrNoNetwork = errors.New("network transport is required for real custom packet transport")

// TransportFactory creates custom packet transports based on configuration.
// It is safe for concurrent use.
type TransportFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.TransportConfig
}

// TestConfigOption customizes the configuration of CreateSimulationForTesting.
type TestConfigOption func(*interfaces.TransportConfig)

// NewTransportFactory creates a factory from the defaults and TOX_*
// environment overrides.
func NewTransportFactory() *TransportFactory {
	config := createDefaultConfig()
	applyEnvironmentOverrides(config)

	logrus.WithFields(logrus.Fields{
		"function":        "NewTransportFactory",
		"use_simulation":  config.UseSimulation,
		"network_timeout": config.NetworkTimeout,
		"retry_attempts":  config.RetryAttempts,
		"max_packet_size": config.MaxPacketSize,
	}).Info("Created transport factory with configuration")

	return &TransportFactory{defaultConfig: config}
}

// createDefaultConfig returns the production defaults: real network, 5s
// timeout, 3 lossless attempts and the Tox custom packet limit.
func createDefaultConfig() *interfaces.TransportConfig {
	return &interfaces.TransportConfig{
		UseSimulation:  false,
		NetworkTimeout: 5000,
		RetryAttempts:  3,
		MaxPacketSize:  limits.MaxCustomPacketSize,
	}
}

func applyEnvironmentOverrides(config *interfaces.TransportConfig) {
	parseSimulationSetting(config)
	parseIntSetting("TOX_NETWORK_TIMEOUT", MinNetworkTimeout, MaxNetworkTimeout, &config.NetworkTimeout)
	parseIntSetting("TOX_RETRY_ATTEMPTS", MinRetryAttempts, MaxRetryAttempts, &config.RetryAttempts)
	parseIntSetting("TOX_MAX_PACKET_SIZE", interfaces.MinPacketSize, limits.MaxCustomPacketSize, &config.MaxPacketSize)
}

func parseSimulationSetting(config *interfaces.TransportConfig) {
	useSimStr := os.Getenv("TOX_USE_SIMULATION")
	if useSimStr == "" {
		return
	}

	useSim, err := strconv.ParseBool(useSimStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSimulationSetting",
			"env_var":     "TOX_USE_SIMULATION",
			"value":       useSimStr,
			"error":       err.Error(),
			"using_value": config.UseSimulation,
		}).Warn("Failed to parse TOX_USE_SIMULATION environment variable, using default")
		return
	}
	config.UseSimulation = useSim
}

// parseIntSetting overwrites *target with the integer in envVar when it parses
// and lies within [lo, hi].
func parseIntSetting(envVar string, lo, hi int, target *int) {
	str := os.Getenv(envVar)
	if str == "" {
		return
	}

	value, err := strconv.Atoi(str)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     envVar,
			"value":       str,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if value < lo || value > hi {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     envVar,
			"value":       value,
			"min":         lo,
			"max":         hi,
			"using_value": *target,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = value
}

// CreateTransport creates a transport from the factory's current configuration.
func (f *TransportFactory) CreateTransport(network interfaces.INetworkTransport) (interfaces.ICustomPacketTransport, error) {
	return f.CreateTransportWithConfig(network, f.GetCurrentConfig())
}

// CreateTransportWithConfig creates a transport from config, or from the
// factory's configuration when config is nil. The network transport is
// ignored in simulation mode.
func (f *TransportFactory) CreateTransportWithConfig(network interfaces.INetworkTransport, config *interfaces.TransportConfig) (interfaces.ICustomPacketTransport, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreateTransportWithConfig",
			"type":     "simulation",
		}).Info("Creating simulated custom packet transport")
		return testing.NewSimulatedTransport(config), nil
	}

	if network == nil {
		return nil, ErrNoNetwork
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateTransportWithConfig",
		"type":     "real",
	}).Info("Creating real custom packet transport")
	return real.NewCustomPacketTransport(network, config)
}

// WithNetworkTimeout sets the network timeout in milliseconds.
func WithNetworkTimeout(timeout int) TestConfigOption {
	return func(c *interfaces.TransportConfig) {
		c.NetworkTimeout = timeout
	}
}

// WithRetryAttempts sets the number of lossless send attempts.
func WithRetryAttempts(retries int) TestConfigOption {
	return func(c *interfaces.TransportConfig) {
		c.RetryAttempts = retries
	}
}

// WithMaxPacketSize sets the largest custom packet the transport accepts.
func WithMaxPacketSize(size int) TestConfigOption {
	return func(c *interfaces.TransportConfig) {
		c.MaxPacketSize = size
	}
}

// CreateSimulationForTesting creates a simulated transport with test defaults
// (1000ms timeout, a single attempt, the Tox packet limit) adjusted by opts.
func (f *TransportFactory) CreateSimulationForTesting(opts ...TestConfigOption) *testing.SimulatedTransport {
	testConfig := &interfaces.TransportConfig{
		UseSimulation:  true,
		NetworkTimeout: 1000,
		RetryAttempts:  1,
		MaxPacketSize:  limits.MaxCustomPacketSize,
	}
	for _, opt := range opts {
		opt(testConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "CreateSimulationForTesting",
		"network_timeout": testConfig.NetworkTimeout,
		"retry_attempts":  testConfig.RetryAttempts,
		"max_packet_size": testConfig.MaxPacketSize,
	}).Info("Creating simulation transport for testing")

	return testing.NewSimulatedTransport(testConfig)
}

// SwitchToSimulation switches the configuration to use simulation
func (f *TransportFactory) SwitchToSimulation() {
	f.setSimulation(true)
}

// SwitchToReal switches the configuration to use the network transport
func (f *TransportFactory) SwitchToReal() {
	f.setSimulation(false)
}

func (f *TransportFactory) setSimulation(sim bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "TransportFactory.setSimulation",
		"previous": f.defaultConfig.UseSimulation,
		"current":  sim,
	}).Info("Switching factory mode")

	f.defaultConfig.UseSimulation = sim
}

// GetCurrentConfig returns a copy of the current default configuration
func (f *TransportFactory) GetCurrentConfig() *interfaces.TransportConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cfg := *f.defaultConfig
	return &cfg
}

// IsUsingSimulation returns true if the factory is configured for simulation
func (f *TransportFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}

// UpdateConfig replaces the factory's default configuration after validating
// it.
func (f *TransportFactory) UpdateConfig(config *interfaces.TransportConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
		"old_timeout":    f.defaultConfig.NetworkTimeout,
		"new_timeout":    config.NetworkTimeout,
	}).Info("Updating factory configuration")

	cfg := *config
	f.defaultConfig = &cfg
	return nil
}
