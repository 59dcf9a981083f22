package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel names used as keys of NetlinkConfig.ReceiveBuffers.
const (
	ChannelLink     = "link"
	ChannelNeighbor = "neighbor"
	ChannelRoute    = "route"
	ChannelNetConf  = "netconf"
)

// Config represents the configuration of the route sync daemon
type Config struct {
	LogLevel string `yaml:"log_level"`

	Redis   RedisConfig   `yaml:"redis"`
	Netlink NetlinkConfig `yaml:"netlink"`
	Policy  PolicyConfig  `yaml:"policy"`

	// Workers bounds the number of write requests handled concurrently.
	Workers int `yaml:"workers"`
	// ResyncInterval triggers a route table dump periodically; zero
	// disables it.
	ResyncInterval time.Duration `yaml:"resync_interval"`

	PacketLog   PacketLogConfig `yaml:"packet_log"`
	MetricsAddr string          `yaml:"metrics_addr"`
}

type RedisConfig struct {
	Addr           string `yaml:"addr"`
	DB             int    `yaml:"db"`
	EventChannel   string `yaml:"event_channel"`
	RequestChannel string `yaml:"request_channel"`
	ReplyChannel   string `yaml:"reply_channel"`
}

type NetlinkConfig struct {
	// BufferSize is the scratch buffer each read lands in.
	BufferSize int `yaml:"buffer_size"`
	// ReceiveBuffers sets SO_RCVBUF per channel; missing or zero keeps the
	// kernel default.
	ReceiveBuffers map[string]int `yaml:"receive_buffers"`
	AckTimeout     time.Duration  `yaml:"ack_timeout"`
}

type PolicyConfig struct {
	UplinkPrefix          string   `yaml:"uplink_prefix"`
	LoopbackName          string   `yaml:"loopback_name"`
	SubInterfaceDelimiter string   `yaml:"subinterface_delimiter"`
	ManagementVLANs       []string `yaml:"management_vlans"`
	ManagementVLANIDs     []int    `yaml:"management_vlan_ids"`
}

type PacketLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Value   string `yaml:"value"`
}

// NewConfig creates a new config with default values
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Redis: RedisConfig{
			Addr:           "127.0.0.1:6379",
			DB:             0,
			EventChannel:   "ROUTESYNC_EVENTS",
			RequestChannel: "ROUTESYNC_REQUESTS",
			ReplyChannel:   "ROUTESYNC_REPLIES",
		},
		Netlink: NetlinkConfig{
			BufferSize: 32 * 1024,
			ReceiveBuffers: map[string]int{
				ChannelRoute:    4 * 1024 * 1024,
				ChannelNeighbor: 1024 * 1024,
			},
			AckTimeout: 5 * time.Second,
		},
		Policy: PolicyConfig{
			UplinkPrefix:          "eth",
			LoopbackName:          "lo",
			SubInterfaceDelimiter: ".",
		},
		Workers:        8,
		ResyncInterval: 0,
		PacketLog: PacketLogConfig{
			Enabled: true,
			Path:    "/proc/sys/net/netfilter/nf_log/7",
			Value:   "nfnetlink_log",
		},
		MetricsAddr: ":9477",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for values the daemon cannot run with
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Redis.EventChannel == "" || c.Redis.RequestChannel == "" || c.Redis.ReplyChannel == "" {
		return fmt.Errorf("redis channels must be set")
	}
	if c.Netlink.BufferSize < 4096 {
		return fmt.Errorf("netlink buffer size %d is below 4096", c.Netlink.BufferSize)
	}
	for name, size := range c.Netlink.ReceiveBuffers {
		switch name {
		case ChannelLink, ChannelNeighbor, ChannelRoute, ChannelNetConf:
		default:
			return fmt.Errorf("unknown channel %q in receive_buffers", name)
		}
		if size < 0 {
			return fmt.Errorf("negative receive buffer for %s", name)
		}
	}
	if c.Netlink.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.ResyncInterval < 0 {
		return fmt.Errorf("resync interval cannot be negative")
	}
	if c.PacketLog.Enabled && c.PacketLog.Path == "" {
		return fmt.Errorf("packet log path is required when enabled")
	}
	for _, id := range c.Policy.ManagementVLANIDs {
		if id < 1 || id > 4094 {
			return fmt.Errorf("management vlan id %d out of range", id)
		}
	}
	return nil
}

// ReceiveBuffer returns the SO_RCVBUF size for a channel.
func (c *Config) ReceiveBuffer(channel string) int {
	return c.Netlink.ReceiveBuffers[channel]
}
