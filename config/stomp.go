package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Outbound buffer policies applied when the buffer is full.
const (
	BufferRejectNewest = "reject-newest"
	BufferDropOldest   = "drop-oldest"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("config: invalid stomp config")

// StompConfig holds the STOMP client configuration.
// Durations are expressed in milliseconds to match broker-side settings.
type StompConfig struct {
	BrokerURL             string            `yaml:"broker_url" json:"broker_url"`
	ConnectHeaders        map[string]string `yaml:"connect_headers" json:"connect_headers"`
	ReconnectDelayMs      int               `yaml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
	MaxReconnectAttempts  int               `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	HeartbeatIncomingMs   int               `yaml:"heartbeat_incoming_ms" json:"heartbeat_incoming_ms"`
	HeartbeatOutgoingMs   int               `yaml:"heartbeat_outgoing_ms" json:"heartbeat_outgoing_ms"`
	ConnectionTimeoutMs   int               `yaml:"connection_timeout_ms" json:"connection_timeout_ms"`
	AutoReconnect         bool              `yaml:"auto_reconnect" json:"auto_reconnect"`
	QueueMaxSize          int               `yaml:"queue_max_size" json:"queue_max_size"`
	BufferPolicy          string            `yaml:"buffer_policy" json:"buffer_policy"`
	FlushOnReconnect      bool              `yaml:"flush_on_reconnect" json:"flush_on_reconnect"`
	SplitLargeFrames      bool              `yaml:"split_large_frames" json:"split_large_frames"`
	MaxWebSocketChunkSize int               `yaml:"max_websocket_chunk_size" json:"max_websocket_chunk_size"`
	Debug                 bool              `yaml:"debug" json:"debug"`
}

// DefaultConfig returns the default STOMP client configuration.
func DefaultConfig() *StompConfig {
	return &StompConfig{
		BrokerURL: "ws://localhost:8000/ws/stomp",
		ConnectHeaders: map[string]string{
			"accept-version": "1.2",
			"heart-beat":     "4000,4000",
		},
		ReconnectDelayMs:      5000,
		MaxReconnectAttempts:  5,
		HeartbeatIncomingMs:   4000,
		HeartbeatOutgoingMs:   4000,
		ConnectionTimeoutMs:   10000,
		AutoReconnect:         true,
		QueueMaxSize:          100,
		BufferPolicy:          BufferRejectNewest,
		SplitLargeFrames:      true,
		MaxWebSocketChunkSize: 20 * 1024,
	}
}

// FromEnv loads the configuration from STOMP_* environment variables.
// Falls back to defaults for any missing or malformed values.
func FromEnv() *StompConfig {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies env overrides.
func LoadFile(path string) (*StompConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STOMP_* environment variables.
func (c *StompConfig) ApplyEnv() {
	if url := os.Getenv("STOMP_BROKER_URL"); url != "" {
		c.BrokerURL = url
	}
	envInt("STOMP_RECONNECT_DELAY_MS", &c.ReconnectDelayMs)
	envInt("STOMP_MAX_RECONNECT_ATTEMPTS", &c.MaxReconnectAttempts)
	envInt("STOMP_HEARTBEAT_IN_MS", &c.HeartbeatIncomingMs)
	envInt("STOMP_HEARTBEAT_OUT_MS", &c.HeartbeatOutgoingMs)
	envInt("STOMP_CONNECTION_TIMEOUT_MS", &c.ConnectionTimeoutMs)
	envInt("STOMP_QUEUE_MAX_SIZE", &c.QueueMaxSize)
	envInt("STOMP_MAX_CHUNK_SIZE", &c.MaxWebSocketChunkSize)
	envBool("STOMP_AUTO_RECONNECT", &c.AutoReconnect)
	envBool("STOMP_FLUSH_ON_RECONNECT", &c.FlushOnReconnect)
	envBool("STOMP_SPLIT_LARGE_FRAMES", &c.SplitLargeFrames)
	envBool("STOMP_DEBUG", &c.Debug)
	if policy := os.Getenv("STOMP_BUFFER_POLICY"); policy != "" {
		c.BufferPolicy = strings.ToLower(policy)
	}
}

// Validate reports settings the client cannot run with.
func (c *StompConfig) Validate() error {
	switch {
	case c.BrokerURL == "":
		return fmt.Errorf("%w: broker_url is required", ErrInvalidConfig)
	case c.ConnectionTimeoutMs <= 0:
		return fmt.Errorf("%w: connection_timeout_ms must be positive", ErrInvalidConfig)
	case c.ReconnectDelayMs < 0, c.MaxReconnectAttempts < 0, c.QueueMaxSize < 0:
		return fmt.Errorf("%w: negative reconnect or queue setting", ErrInvalidConfig)
	case c.HeartbeatIncomingMs < 0, c.HeartbeatOutgoingMs < 0:
		return fmt.Errorf("%w: negative heartbeat interval", ErrInvalidConfig)
	case c.SplitLargeFrames && c.MaxWebSocketChunkSize <= 0:
		return fmt.Errorf("%w: max_websocket_chunk_size must be positive when splitting", ErrInvalidConfig)
	}
	switch c.BufferPolicy {
	case "", BufferRejectNewest, BufferDropOldest:
	default:
		return fmt.Errorf("%w: unknown buffer_policy %q", ErrInvalidConfig, c.BufferPolicy)
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate a running client's config.
func (c *StompConfig) Clone() *StompConfig {
	cp := *c
	cp.ConnectHeaders = maps.Clone(c.ConnectHeaders)
	return &cp
}

func (c *StompConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

func (c *StompConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

func (c *StompConfig) HeartbeatIncoming() time.Duration {
	return time.Duration(c.HeartbeatIncomingMs) * time.Millisecond
}

func (c *StompConfig) HeartbeatOutgoing() time.Duration {
	return time.Duration(c.HeartbeatOutgoingMs) * time.Millisecond
}

// ChunkSize returns the frame-splitting threshold, or 0 when splitting is off.
func (c *StompConfig) ChunkSize() int {
	if !c.SplitLargeFrames {
		return 0
	}
	return c.MaxWebSocketChunkSize
}

func envInt(key string, dst *int) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			*dst = v
		}
	}
}

func envBool(key string, dst *bool) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			*dst = v
		}
	}
}
