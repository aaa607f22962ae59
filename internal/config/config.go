// Package config loads go-twolink configuration from defaults, an optional
// YAML file and TWOLINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
)

// EnvPrefix is prepended to every environment override, e.g. TWOLINK_ARM_L1.
const EnvPrefix = "TWOLINK"

// Default arm and motion parameters (meters, seconds).
const (
	DefaultL1            = 0.12
	DefaultL2            = 0.12
	DefaultGripperLength = 0.02
	DefaultHomeX         = 0.14
	DefaultHomeY         = 0.14
	DefaultDuration      = 20.0
	DefaultDt            = 0.05
	DefaultFrameRate     = 60.0
	DefaultPort          = "8080"
	DefaultServerURL     = "http://localhost:" + DefaultPort
	DefaultClientTimeout = 10 * time.Second
	DefaultRetryElapsed  = 30 * time.Second
)

// ArmConfig describes the physical arm.
type ArmConfig struct {
	L1            float64 `mapstructure:"l1" yaml:"l1"`
	L2            float64 `mapstructure:"l2" yaml:"l2"`
	GripperLength float64 `mapstructure:"gripper_length" yaml:"gripper_length"`
	HomeX         float64 `mapstructure:"home_x" yaml:"home_x"`
	HomeY         float64 `mapstructure:"home_y" yaml:"home_y"`
}

// Links returns the link lengths.
func (a ArmConfig) Links() geometry.Links {
	return geometry.Links{L1: a.L1, L2: a.L2}
}

// Workspace returns the links together with the gripper.
func (a ArmConfig) Workspace() geometry.Workspace {
	return geometry.Workspace{Links: a.Links(), GripperLength: a.GripperLength}
}

// Home returns the home target.
func (a ArmConfig) Home() geometry.Point {
	return geometry.Pt(a.HomeX, a.HomeY)
}

// MotionConfig holds per-move defaults.
type MotionConfig struct {
	Duration  float64 `mapstructure:"duration" yaml:"duration"`     // seconds
	Dt        float64 `mapstructure:"dt" yaml:"dt"`                 // sampling step, seconds
	Elbow     string  `mapstructure:"elbow" yaml:"elbow"`           // "up" or "down"
	Animate   bool    `mapstructure:"animate" yaml:"animate"`       // play back in real time
	FrameRate float64 `mapstructure:"frame_rate" yaml:"frame_rate"` // playback frames per second
	Gripper   bool    `mapstructure:"gripper" yaml:"gripper"`       // initial gripper-offset mode
}

// ElbowMode parses the configured elbow branch.
func (m MotionConfig) ElbowMode() (kinematics.ElbowMode, error) {
	return kinematics.ParseElbowMode(m.Elbow)
}

// ServerConfig configures the HTTP/websocket server.
type ServerConfig struct {
	Port      string  `mapstructure:"port" yaml:"port"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // plan requests per second
	Burst     int     `mapstructure:"burst" yaml:"burst"`
	Static    string  `mapstructure:"static" yaml:"static"` // optional directory served at /
	AccessLog bool    `mapstructure:"access_log" yaml:"access_log"`
}

// ClientConfig configures the remote commands that talk to a running server.
type ClientConfig struct {
	Server   string        `mapstructure:"server" yaml:"server"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`     // per request
	Retry    time.Duration `mapstructure:"retry" yaml:"retry"`         // total retry budget, 0 disables
	WaitBusy bool          `mapstructure:"wait_busy" yaml:"wait_busy"` // retry while another move executes
}

// LoggerConfig configures internal/log.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Config is the full application configuration.
type Config struct {
	Arm    ArmConfig    `mapstructure:"arm" yaml:"arm"`
	Motion MotionConfig `mapstructure:"motion" yaml:"motion"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Client ClientConfig `mapstructure:"client" yaml:"client"`
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
}

// SetDefaults registers every key with its default so that environment
// overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("arm.l1", DefaultL1)
	v.SetDefault("arm.l2", DefaultL2)
	v.SetDefault("arm.gripper_length", DefaultGripperLength)
	v.SetDefault("arm.home_x", DefaultHomeX)
	v.SetDefault("arm.home_y", DefaultHomeY)

	v.SetDefault("motion.duration", DefaultDuration)
	v.SetDefault("motion.dt", DefaultDt)
	v.SetDefault("motion.elbow", "up")
	v.SetDefault("motion.animate", true)
	v.SetDefault("motion.frame_rate", DefaultFrameRate)
	v.SetDefault("motion.gripper", false)

	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.static", "")
	v.SetDefault("server.access_log", false)

	v.SetDefault("client.server", DefaultServerURL)
	v.SetDefault("client.timeout", DefaultClientTimeout)
	v.SetDefault("client.retry", DefaultRetryElapsed)
	v.SetDefault("client.wait_busy", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)
	v.SetDefault("logger.compress", false)
}

// New returns a viper instance wired for TWOLINK_* environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (when non-empty) into v and returns the validated config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewDefaultConfig returns the defaults without reading the environment.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Validate checks the configuration for values the planner would reject.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Arm.Links().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("arm: %w", err))
	}
	if c.Arm.GripperLength < 0 {
		errs = append(errs, errors.New("arm.gripper_length must not be negative"))
	}
	if !(c.Motion.Duration > 0) {
		errs = append(errs, errors.New("motion.duration must be positive"))
	}
	if !(c.Motion.Dt > 0) {
		errs = append(errs, errors.New("motion.dt must be positive"))
	}
	if _, err := c.Motion.ElbowMode(); err != nil {
		errs = append(errs, fmt.Errorf("motion.elbow: %w", err))
	}
	if !(c.Motion.FrameRate > 0) {
		errs = append(errs, errors.New("motion.frame_rate must be positive"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.burst must not be negative"))
	}
	if c.Client.Timeout < 0 || c.Client.Retry < 0 {
		errs = append(errs, errors.New("client.timeout and client.retry must not be negative"))
	}

	return errors.Join(errs...)
}
