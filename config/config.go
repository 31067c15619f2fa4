package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-pulse/debug"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

// ActuatorConfig maps one actuator to a control change number
type ActuatorConfig struct {
	CC   int     `yaml:"cc"`
	Gain float64 `yaml:"gain,omitempty"` // 0 or unset means 1
}

// PortConfig names an output port explicitly
type PortConfig struct {
	Port      string           `yaml:"port"`
	Channel   int              `yaml:"channel,omitempty"` // 0 inherits midi.channel
	Actuators []ActuatorConfig `yaml:"actuators"`
}

// PanicConfig selects the input that stops a run
type PanicConfig struct {
	Port string `yaml:"port,omitempty"` // substring of the input port name; empty disables
	CC   int    `yaml:"cc"`             // controller that also triggers, -1 for keys only
}

// MIDIConfig stores how devices are found and driven
type MIDIConfig struct {
	PortMatch string        `yaml:"portMatch"`
	Channel   int           `yaml:"channel"` // 1-16
	Controls  []int         `yaml:"controls"`
	PollRate  time.Duration `yaml:"pollRate"`
	Devices   []PortConfig  `yaml:"devices,omitempty"`
	Panic     PanicConfig   `yaml:"panic"`
}

// Config is the main configuration structure
type Config struct {
	TickRate       int           `yaml:"tickRate"`
	CommandTimeout time.Duration `yaml:"commandTimeout"`
	Preset         string        `yaml:"preset"`
	Debug          bool          `yaml:"debug"`
	Palette        string        `yaml:"palette,omitempty"` // GPL file for the monitor
	MIDI           MIDIConfig    `yaml:"midi"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		TickRate:       10,
		CommandTimeout: 250 * time.Millisecond,
		Preset:         "wave",
		MIDI: MIDIConfig{
			PortMatch: "pulse",
			Channel:   1,
			Controls:  []int{1},
			PollRate:  time.Second,
			Panic:     PanicConfig{CC: -1},
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-pulse"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file. Keys missing from the file keep their
// defaults; a missing file is all defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			debug.Log("config", "no config at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	debug.Log("config", "loaded %s", path)
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the driver or the MIDI output cannot use.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.TickRate <= 0 {
		bad("tickRate must be > 0, got %d", c.TickRate)
	}
	if c.CommandTimeout < 0 {
		bad("commandTimeout must be >= 0, got %s", c.CommandTimeout)
	}
	if c.MIDI.PollRate < 0 {
		bad("midi.pollRate must be >= 0, got %s", c.MIDI.PollRate)
	}
	if !validChannel(c.MIDI.Channel) {
		bad("midi.channel must be 1-16, got %d", c.MIDI.Channel)
	}
	for i, cc := range c.MIDI.Controls {
		if !validCC(cc) {
			bad("midi.controls[%d] must be 0-127, got %d", i, cc)
		}
	}
	if cc := c.MIDI.Panic.CC; cc != -1 && !validCC(cc) {
		bad("midi.panic.cc must be -1 or 0-127, got %d", cc)
	}
	for i, d := range c.MIDI.Devices {
		if d.Port == "" {
			bad("midi.devices[%d].port is empty", i)
		}
		if d.Channel != 0 && !validChannel(d.Channel) {
			bad("midi.devices[%d].channel must be 1-16, got %d", i, d.Channel)
		}
		for j, a := range d.Actuators {
			if !validCC(a.CC) {
				bad("midi.devices[%d].actuators[%d].cc must be 0-127, got %d", i, j, a.CC)
			}
			if a.Gain < 0 {
				bad("midi.devices[%d].actuators[%d].gain must be >= 0, got %v", i, j, a.Gain)
			}
		}
	}
	return errors.Join(errs...)
}

func validChannel(ch int) bool { return ch >= 1 && ch <= 16 }
func validCC(cc int) bool      { return cc >= 0 && cc <= 127 }

// FindDevice finds an explicit port config by name
func (c *Config) FindDevice(port string) *PortConfig {
	for i := range c.MIDI.Devices {
		if c.MIDI.Devices[i].Port == port {
			return &c.MIDI.Devices[i]
		}
	}
	return nil
}

// AddDevice adds or updates an explicit port config
func (c *Config) AddDevice(d PortConfig) {
	for i := range c.MIDI.Devices {
		if c.MIDI.Devices[i].Port == d.Port {
			c.MIDI.Devices[i] = d
			return
		}
	}
	c.MIDI.Devices = append(c.MIDI.Devices, d)
}
