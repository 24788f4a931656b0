// Package config loads the deskxr configuration with Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"deskxr/internal/geom"

	"github.com/spf13/viper"
)

const envPrefix = "DESKXR"

type Config struct {
	// TickRate is the interaction and render rate in Hz.
	TickRate    int               `mapstructure:"tick_rate" yaml:"tick_rate"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Keyboard    KeyboardConfig    `mapstructure:"keyboard" yaml:"keyboard"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Screens     []ScreenConfig    `mapstructure:"screens" yaml:"screens"`
	Input       InputConfig       `mapstructure:"input" yaml:"input"`
	Pose        PoseConfig        `mapstructure:"pose" yaml:"pose"`
	Status      StatusConfig      `mapstructure:"status" yaml:"status"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

type InteractionConfig struct {
	GrabThreshold     float64 `mapstructure:"grab_threshold" yaml:"grab_threshold"`
	TriggerThreshold  float64 `mapstructure:"trigger_threshold" yaml:"trigger_threshold"`
	ScrollingSpeed    float64 `mapstructure:"scrolling_speed" yaml:"scrolling_speed"`
	ScrollIntervalMs  int     `mapstructure:"scroll_interval_ms" yaml:"scroll_interval_ms"`
	ClickFreezeTimeMs int     `mapstructure:"click_freeze_time_ms" yaml:"click_freeze_time_ms"`
	ResizeRate        float64 `mapstructure:"resize_rate" yaml:"resize_rate"`
	MinPanelWidth     float64 `mapstructure:"min_panel_width" yaml:"min_panel_width"`
	MaxPanelWidth     float64 `mapstructure:"max_panel_width" yaml:"max_panel_width"`
	BackhandAngleDeg  float64 `mapstructure:"backhand_angle_deg" yaml:"backhand_angle_deg"`
	DesktopViewScale  float64 `mapstructure:"desktop_view_scale" yaml:"desktop_view_scale"`
}

type KeyboardConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	SoundEnabled bool    `mapstructure:"sound_enabled" yaml:"sound_enabled"`
	Volume       float64 `mapstructure:"volume" yaml:"volume"`
	Scale        float64 `mapstructure:"scale" yaml:"scale"`
	// Layout is an optional YAML layout file, watched for changes.
	Layout string `mapstructure:"layout" yaml:"layout"`
}

type WatchConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Scale   float64 `mapstructure:"scale" yaml:"scale"`
}

type CaptureConfig struct {
	FPS              int `mapstructure:"fps" yaml:"fps"`
	MaxTextureWidth  int `mapstructure:"max_texture_width" yaml:"max_texture_width"`
	MaxTextureHeight int `mapstructure:"max_texture_height" yaml:"max_texture_height"`
	// TextureBudget caps the pixels of one texture allocation, 0 for none.
	TextureBudget int `mapstructure:"texture_budget" yaml:"texture_budget"`
}

// ScreenConfig is one captured output.
type ScreenConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Source is xshm, stream or pattern.
	Source  string `mapstructure:"source" yaml:"source"`
	Display string `mapstructure:"display" yaml:"display"`
	Listen  string `mapstructure:"listen" yaml:"listen"`

	// Desktop rect of the output in logical pixels.
	X         int    `mapstructure:"x" yaml:"x"`
	Y         int    `mapstructure:"y" yaml:"y"`
	Width     int    `mapstructure:"width" yaml:"width"`
	Height    int    `mapstructure:"height" yaml:"height"`
	Transform string `mapstructure:"transform" yaml:"transform"`
	Stretch   bool   `mapstructure:"stretch" yaml:"stretch"`
}

type InputConfig struct {
	// Backend is uinput, xtest, remote or none.
	Backend          string `mapstructure:"backend" yaml:"backend"`
	Device           string `mapstructure:"device" yaml:"device"`
	Display          string `mapstructure:"display" yaml:"display"`
	RemoteURL        string `mapstructure:"remote_url" yaml:"remote_url"`
	RemoteToken      string `mapstructure:"remote_token" yaml:"remote_token"`
	QueueDepth       int    `mapstructure:"queue_depth" yaml:"queue_depth"`
	FailureThreshold int    `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	RetryIntervalMs  int    `mapstructure:"retry_interval_ms" yaml:"retry_interval_ms"`
}

type PoseConfig struct {
	// Listen is the UDP address tracking samples arrive on.
	Listen      string `mapstructure:"listen" yaml:"listen"`
	LostAfterMs int    `mapstructure:"lost_after_ms" yaml:"lost_after_ms"`
}

type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Token   string `mapstructure:"token" yaml:"token"`
	TLS     bool   `mapstructure:"tls" yaml:"tls"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NewViper prepares a Viper instance with defaults, the config file search
// path and DESKXR_ environment overrides. An empty file searches for
// "config" in the XDG config directory and the working directory.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		if dir, err := ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the configuration from v and validates it. A missing config
// file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c InteractionConfig) ClickFreeze() time.Duration {
	return time.Duration(c.ClickFreezeTimeMs) * time.Millisecond
}

func (c InteractionConfig) ScrollInterval() time.Duration {
	return time.Duration(c.ScrollIntervalMs) * time.Millisecond
}

func (c InputConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

func (c PoseConfig) LostAfter() time.Duration {
	return time.Duration(c.LostAfterMs) * time.Millisecond
}

var transforms = map[string]geom.OutputTransform{
	"":            geom.TransformNormal,
	"normal":      geom.TransformNormal,
	"90":          geom.Transform90,
	"180":         geom.Transform180,
	"270":         geom.Transform270,
	"flipped":     geom.TransformFlipped,
	"flipped-90":  geom.TransformFlipped90,
	"flipped-180": geom.TransformFlipped180,
	"flipped-270": geom.TransformFlipped270,
}

// OutputTransform parses the transform name.
func (s ScreenConfig) OutputTransform() (geom.OutputTransform, error) {
	t, ok := transforms[strings.ToLower(s.Transform)]
	if !ok {
		return 0, fmt.Errorf("unknown transform %q", s.Transform)
	}
	return t, nil
}

// DesktopRect is the output rect in logical pixels, empty when unset.
func (s ScreenConfig) DesktopRect() geom.Rect {
	return geom.Rect{X: float64(s.X), Y: float64(s.Y), W: float64(s.Width), H: float64(s.Height)}
}
