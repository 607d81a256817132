package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/sambigeara/relay/pkg/perm"
	"github.com/sambigeara/relay/pkg/wire"
)

const (
	configFileName = "config.yaml"
	DefaultPort    = 5000
	directoryPerm  = 0o700
	configFilePerm = 0o600

	DefaultGroup = "relay"
)

const (
	DefaultDeliveryInterval      = 500 * time.Millisecond
	DefaultSweepInterval         = 30 * time.Second
	DefaultClientTimeout         = 60 * time.Second
	DefaultInternalEventInterval = 5 * time.Second
	DefaultEventLogSize          = 50

	DefaultHeartbeatInterval = 10 * time.Second
	DefaultAutoEventMin      = 8 * time.Second
	DefaultAutoEventMax      = 15 * time.Second
	DefaultReadTimeout       = 5 * time.Second
)

type Coordinator struct {
	Listen                string        `yaml:"listen,omitempty"`
	DeliveryInterval      time.Duration `yaml:"deliveryInterval,omitempty"`
	SweepInterval         time.Duration `yaml:"sweepInterval,omitempty"`
	ClientTimeout         time.Duration `yaml:"clientTimeout,omitempty"`
	InternalEventInterval time.Duration `yaml:"internalEventInterval,omitempty"`
	InternalEventJitter   float64       `yaml:"internalEventJitter,omitempty"`
	EventLogSize          int           `yaml:"eventLogSize,omitempty"`
	// MaxConcurrentHandlers caps in-flight datagram handlers; 0 is unbounded.
	MaxConcurrentHandlers int `yaml:"maxConcurrentHandlers,omitempty"`
}

type Participant struct {
	Coordinator       string        `yaml:"coordinator,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
	AutoEventMin      time.Duration `yaml:"autoEventMin,omitempty"`
	AutoEventMax      time.Duration `yaml:"autoEventMax,omitempty"`
	ReadTimeout       time.Duration `yaml:"readTimeout,omitempty"`
}

type Wire struct {
	Codec string `yaml:"codec,omitempty"`
}

type Config struct {
	LogLevel string `yaml:"logLevel,omitempty"`
	// Group is the system group the state directory, config and control
	// socket are shared with. Empty disables sharing.
	Group       string      `yaml:"group"`
	Wire        Wire        `yaml:"wire,omitempty"`
	Coordinator Coordinator `yaml:"coordinator,omitempty"`
	Participant Participant `yaml:"participant,omitempty"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Group:    DefaultGroup,
		Wire:     Wire{Codec: wire.CodecJSON},
		Coordinator: Coordinator{
			Listen:                net.JoinHostPort("", strconv.Itoa(DefaultPort)),
			DeliveryInterval:      DefaultDeliveryInterval,
			SweepInterval:         DefaultSweepInterval,
			ClientTimeout:         DefaultClientTimeout,
			InternalEventInterval: DefaultInternalEventInterval,
			EventLogSize:          DefaultEventLogSize,
		},
		Participant: Participant{
			Coordinator:       net.JoinHostPort("localhost", strconv.Itoa(DefaultPort)),
			HeartbeatInterval: DefaultHeartbeatInterval,
			AutoEventMin:      DefaultAutoEventMin,
			AutoEventMax:      DefaultAutoEventMax,
			ReadTimeout:       DefaultReadTimeout,
		},
	}
}

// Path is the config file location within dir.
func Path(dir string) string {
	return filepath.Join(dir, configFileName)
}

// Load reads config.yaml from dir over the defaults. A missing or empty file
// yields the defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(dir string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := renameio.WriteFile(Path(dir), encoded, configFilePerm); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	grp, err := perm.Lookup(cfg.Group)
	if err != nil {
		return err
	}
	if err := grp.Config(Path(dir)); err != nil {
		return fmt.Errorf("share config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := wire.NewCodec(c.Wire.Codec); err != nil {
		return fmt.Errorf("wire.codec: %w", err)
	}

	co := c.Coordinator
	if err := validateAddr(co.Listen); err != nil {
		return fmt.Errorf("coordinator.listen: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"coordinator.deliveryInterval":      co.DeliveryInterval,
		"coordinator.sweepInterval":         co.SweepInterval,
		"coordinator.clientTimeout":         co.ClientTimeout,
		"coordinator.internalEventInterval": co.InternalEventInterval,
		"participant.heartbeatInterval":     c.Participant.HeartbeatInterval,
		"participant.autoEventMin":          c.Participant.AutoEventMin,
		"participant.autoEventMax":          c.Participant.AutoEventMax,
		"participant.readTimeout":           c.Participant.ReadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if co.InternalEventJitter < 0 || co.InternalEventJitter >= 1 {
		return errors.New("coordinator.internalEventJitter must be in [0, 1)")
	}
	if co.EventLogSize <= 0 {
		return errors.New("coordinator.eventLogSize must be > 0")
	}
	if co.MaxConcurrentHandlers < 0 {
		return errors.New("coordinator.maxConcurrentHandlers must be >= 0")
	}

	p := c.Participant
	if err := validateAddr(p.Coordinator); err != nil {
		return fmt.Errorf("participant.coordinator: %w", err)
	}
	if p.AutoEventMax < p.AutoEventMin {
		return errors.New("participant.autoEventMax must be >= autoEventMin")
	}
	return nil
}

func validateAddr(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// NormalizeAddr appends the default port when addr has none.
func NormalizeAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("address cannot be empty")
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}

	return net.JoinHostPort(addr, strconv.Itoa(DefaultPort)), nil
}
