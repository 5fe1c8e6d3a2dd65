// Package config loads the file configuration of a channeled node.
//
// A configuration file is YAML (.yaml, .yml) or TOML (.toml):
//
//	[channels]
//	lossy = [3, 4]
//
//	[logging]
//	level = "debug"
//	report-caller = false
//	format = "text"
//
//	[transport]
//	simulation = false
//	self-id = 1
//	listen = ":33445"
//	network-timeout = 5000
//	retry-attempts = 3
//	max-packet-size = 1373
//
// TOX_LOSSY_CHANNELS, a comma separated list of channel ids, replaces the
// lossy channel list of the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/opd-ai/toxnet/interfaces"
	"github.com/opd-ai/toxnet/limits"
	"github.com/opd-ai/toxnet/wire"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LossyChannelsEnv overrides Channels.Lossy.
const LossyChannelsEnv = "TOX_LOSSY_CHANNELS"

// ErrUnknownFormat is returned for configuration files with an unsupported extension.
var ErrUnknownFormat = errors.New("unknown configuration format")

// Config is the file configuration of a node.
type Config struct {
	Channels  ChannelsConf  `yaml:"channels" toml:"channels"`
	Logging   LogConf       `yaml:"logging" toml:"logging"`
	Transport TransportConf `yaml:"transport" toml:"transport"`
}

// ChannelsConf lists the channels configured as lossy; all others are lossless.
type ChannelsConf struct {
	Lossy []uint8 `yaml:"lossy" toml:"lossy"`
}

// LogConf describes the logging block.
type LogConf struct {
	Level        string `yaml:"level" toml:"level"`
	ReportCaller bool   `yaml:"report-caller" toml:"report-caller"`
	Format       string `yaml:"format" toml:"format"`
}

// TransportConf describes the transport block. Zero values select defaults.
type TransportConf struct {
	Simulation     bool   `yaml:"simulation" toml:"simulation"`
	SelfID         uint32 `yaml:"self-id" toml:"self-id"`
	Listen         string `yaml:"listen" toml:"listen"`
	NetworkTimeout int    `yaml:"network-timeout" toml:"network-timeout"`
	RetryAttempts  int    `yaml:"retry-attempts" toml:"retry-attempts"`
	MaxPacketSize  int    `yaml:"max-packet-size" toml:"max-packet-size"`
}

// Default returns a configuration with every channel lossless and info logging.
func Default() *Config {
	return &Config{
		Logging: LogConf{Level: "info", Format: "text"},
		Transport: TransportConf{
			NetworkTimeout: 5000,
			RetryAttempts:  3,
			MaxPacketSize:  limits.MaxCustomPacketSize,
		},
	}
}

// LoadFile reads path on top of Default and applies the environment override.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv replaces the lossy channel list with TOX_LOSSY_CHANNELS when set.
// An empty value is ignored; "none" clears the list.
func (c *Config) ApplyEnv() error {
	str := strings.TrimSpace(os.Getenv(LossyChannelsEnv))
	if str == "" {
		return nil
	}
	if str == "none" {
		c.Channels.Lossy = nil
		return nil
	}

	var lossy []uint8
	for _, field := range strings.Split(str, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
		if err != nil {
			return fmt.Errorf("%s: %w", LossyChannelsEnv, err)
		}
		lossy = append(lossy, uint8(id))
	}
	c.Channels.Lossy = lossy
	return nil
}

// ChannelTypes returns the type of every channel.
func (c *Config) ChannelTypes() ([wire.MaxChannels]wire.ChannelType, error) {
	var types [wire.MaxChannels]wire.ChannelType
	for _, id := range c.Channels.Lossy {
		ch := wire.ChannelID(id)
		if !ch.Valid() {
			return types, fmt.Errorf("channels.lossy: %w: %d", wire.ErrInvalidChannel, id)
		}
		types[ch] = wire.ChannelLossy
	}
	return types, nil
}

// TransportConfig converts the transport block, filling zero values with
// defaults, and validates the result.
func (c *Config) TransportConfig() (*interfaces.TransportConfig, error) {
	def := Default().Transport
	tc := &interfaces.TransportConfig{
		UseSimulation:  c.Transport.Simulation,
		NetworkTimeout: c.Transport.NetworkTimeout,
		RetryAttempts:  c.Transport.RetryAttempts,
		MaxPacketSize:  c.Transport.MaxPacketSize,
	}
	if tc.NetworkTimeout == 0 {
		tc.NetworkTimeout = def.NetworkTimeout
	}
	if tc.MaxPacketSize == 0 {
		tc.MaxPacketSize = def.MaxPacketSize
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// ApplyLogging configures the standard logrus logger from the logging block.
// An unknown level or format is reported and leaves that setting unchanged.
func (c *Config) ApplyLogging() {
	if c.Logging.Level != "" {
		if lvl, err := log.ParseLevel(c.Logging.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    c.Logging.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(c.Logging.ReportCaller)

	switch c.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		log.WithField("format", c.Logging.Format).Warn("Unknown logging format")
	}
}
