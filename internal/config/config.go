// Package config loads remoteview settings from defaults, an optional
// config.yaml and REMOTEVIEW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/brporter/remoteview/internal/input"
	"github.com/brporter/remoteview/internal/ladder"
	"github.com/brporter/remoteview/internal/provision"
	"github.com/brporter/remoteview/internal/session"
)

const appName = "remoteview"

// EnvPrefix prefixes every environment override, e.g.
// REMOTEVIEW_CONTROL_RECONNECT_DELAY=10s.
const EnvPrefix = "REMOTEVIEW"

// Config holds CLI configuration.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Device   SizeConfig    `mapstructure:"device"`
	Canvas   SizeConfig    `mapstructure:"canvas"`
	Video    VideoConfig   `mapstructure:"video"`
	Control  ControlConfig `mapstructure:"control"`
	Input    InputConfig   `mapstructure:"input"`
	Farm     FarmConfig    `mapstructure:"farm"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Viewer   ViewerConfig  `mapstructure:"viewer"`
}

type SizeConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type VideoConfig struct {
	MinFPS float64 `mapstructure:"min_fps"`
	MaxFPS float64 `mapstructure:"max_fps"`
	Tiers  int     `mapstructure:"tiers"`
}

type ControlConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	ReconnectLimit int           `mapstructure:"reconnect_limit"`
}

type InputConfig struct {
	KeyInterval time.Duration `mapstructure:"key_interval"`
}

type FarmConfig struct {
	URL           string        `mapstructure:"url"`
	DeviceARN     string        `mapstructure:"device_arn"`
	BillingMethod string        `mapstructure:"billing_method"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type AuthConfig struct {
	Issuer   string   `mapstructure:"issuer"`
	ClientID string   `mapstructure:"client_id"`
	Scopes   []string `mapstructure:"scopes"`
}

type ViewerConfig struct {
	Listen string `mapstructure:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Device:  SizeConfig{Width: 1080, Height: 1920},
		Canvas:  SizeConfig{Width: 450, Height: 768},
		Video:   VideoConfig{MinFPS: session.DefaultMinFPS, MaxFPS: session.DefaultMaxFPS, Tiers: session.DefaultTierCount},
		Control: ControlConfig{ReconnectDelay: session.DefaultReconnectDelay, ProbeInterval: session.DefaultProbeInterval},
		Input:   InputConfig{KeyInterval: input.DefaultKeyInterval},
		Farm:    FarmConfig{BillingMethod: provision.BillingMetered, PollInterval: provision.DefaultPollInterval},
		Auth:    AuthConfig{Scopes: []string{"openid", "profile", "email", "offline_access"}},
		Viewer:  ViewerConfig{Listen: "127.0.0.1:8070"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("device.width", d.Device.Width)
	v.SetDefault("device.height", d.Device.Height)
	v.SetDefault("canvas.width", d.Canvas.Width)
	v.SetDefault("canvas.height", d.Canvas.Height)
	v.SetDefault("video.min_fps", d.Video.MinFPS)
	v.SetDefault("video.max_fps", d.Video.MaxFPS)
	v.SetDefault("video.tiers", d.Video.Tiers)
	v.SetDefault("control.reconnect_delay", d.Control.ReconnectDelay)
	v.SetDefault("control.probe_interval", d.Control.ProbeInterval)
	v.SetDefault("control.reconnect_limit", d.Control.ReconnectLimit)
	v.SetDefault("input.key_interval", d.Input.KeyInterval)
	v.SetDefault("farm.url", d.Farm.URL)
	v.SetDefault("farm.device_arn", d.Farm.DeviceARN)
	v.SetDefault("farm.billing_method", d.Farm.BillingMethod)
	v.SetDefault("farm.poll_interval", d.Farm.PollInterval)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.client_id", d.Auth.ClientID)
	v.SetDefault("auth.scopes", d.Auth.Scopes)
	v.SetDefault("viewer.listen", d.Viewer.Listen)
}

// Dir is the per-user configuration directory.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// Load reads configuration. An empty path searches config.yaml in Dir and
// the working directory; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Session builds the session tunables.
func (c Config) Session() (session.Config, error) {
	tiers, err := ladder.Build(c.Video.MinFPS, c.Video.MaxFPS, c.Video.Tiers)
	if err != nil {
		return session.Config{}, fmt.Errorf("video rates: %w", err)
	}
	cfg := session.DefaultConfig()
	cfg.DeviceSize = input.Size{Width: c.Device.Width, Height: c.Device.Height}
	cfg.CanvasSize = input.Size{Width: c.Canvas.Width, Height: c.Canvas.Height}
	cfg.Tiers = tiers
	cfg.ReconnectDelay = c.Control.ReconnectDelay
	cfg.ProbeInterval = c.Control.ProbeInterval
	cfg.ReconnectLimit = c.Control.ReconnectLimit
	cfg.KeyInterval = c.Input.KeyInterval
	if _, err := input.NewScaleFactors(cfg.DeviceSize, cfg.CanvasSize); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

// FarmClientConfig builds the device farm client settings.
func (c Config) FarmClientConfig(token string) provision.FarmConfig {
	return provision.FarmConfig{
		BaseURL:       c.Farm.URL,
		Token:         token,
		DeviceARN:     c.Farm.DeviceARN,
		BillingMethod: c.Farm.BillingMethod,
		PollInterval:  c.Farm.PollInterval,
	}
}
