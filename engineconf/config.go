// Package engineconf loads the engine's startup configuration (spec §6)
// through viper, the way the teacher pairs spf13/viper with spf13/cobra for
// every daemon entrypoint.
package engineconf

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the set of values spec §6 calls out as configuration:
// realtime scheduling, verbosity, client timeout, and port table capacity,
// plus the buffer/sample-rate pair the buffer pool and clock need at boot
// and the rolling CPU-load window from spec §4.9.
type Config struct {
	Realtime          bool   `mapstructure:"realtime"`
	RTPriority        int    `mapstructure:"rtpriority"`
	Verbose           bool   `mapstructure:"verbose"`
	ClientTimeoutMs   int    `mapstructure:"client_timeout_msecs"`
	PortMax           int    `mapstructure:"port_max"`
	ServerDir         string `mapstructure:"server_dir"`
	BufferSize        int    `mapstructure:"buffer_size"`
	SampleRate        int    `mapstructure:"sample_rate"`
	RollingIntervalMs int    `mapstructure:"rolling_interval_ms"`
}

// Default returns the baseline configuration spec §6 names explicitly
// (port_max defaults to 128) plus the values needed to boot without a
// config file.
func Default() Config {
	return Config{
		Realtime:          false,
		RTPriority:        10,
		Verbose:           false,
		ClientTimeoutMs:   500,
		PortMax:           128,
		ServerDir:         "/tmp/jack1",
		BufferSize:        1024,
		SampleRate:        48000,
		RollingIntervalMs: 1000,
	}
}

// Bind registers Default()'s values into v so that a caller who never
// supplies a config file or flags still gets a valid Config out of Load.
func Bind(v *viper.Viper) {
	d := Default()
	v.SetDefault("realtime", d.Realtime)
	v.SetDefault("rtpriority", d.RTPriority)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("client_timeout_msecs", d.ClientTimeoutMs)
	v.SetDefault("port_max", d.PortMax)
	v.SetDefault("server_dir", d.ServerDir)
	v.SetDefault("buffer_size", d.BufferSize)
	v.SetDefault("sample_rate", d.SampleRate)
	v.SetDefault("rolling_interval_ms", d.RollingIntervalMs)

	v.SetEnvPrefix("jack1")
	v.AutomaticEnv()
}

// Load unmarshals v into a Config and validates it against the constraints
// spec §6 states (rtpriority in [1,98], client_timeout_msecs > 0, ...).
func Load(v *viper.Viper) (Config, error) {
	Bind(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal engine config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate enforces the bounds spec §6 states for configuration values.
func (c Config) Validate() error {
	if c.RTPriority < 1 || c.RTPriority > 98 {
		return fmt.Errorf("rtpriority must be in [1,98], got %d", c.RTPriority)
	}
	if c.ClientTimeoutMs <= 0 {
		return fmt.Errorf("client_timeout_msecs must be > 0, got %d", c.ClientTimeoutMs)
	}
	if c.PortMax <= 0 {
		return fmt.Errorf("port_max must be > 0, got %d", c.PortMax)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be > 0, got %d", c.BufferSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be > 0, got %d", c.SampleRate)
	}
	if c.ServerDir == "" {
		return fmt.Errorf("server_dir must not be empty")
	}
	return nil
}
