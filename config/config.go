package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"callrec/internal/domain"
)

type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Grant         GrantConfig         `yaml:"grant"`
	Control       ControlConfig       `yaml:"control"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Indicator     IndicatorConfig     `yaml:"indicator"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

type CaptureConfig struct {
	SampleRate  int    `yaml:"sample_rate"`
	FrameBytes  int    `yaml:"frame_bytes"`
	ReadTimeout string `yaml:"read_timeout"`
	// Microphone is "portaudio" or "file"; Playback is "loopback" or "file".
	Microphone     string   `yaml:"microphone"`
	Playback       string   `yaml:"playback"`
	MicFile        string   `yaml:"mic_file"`
	PlaybackFile   string   `yaml:"playback_file"`
	Realtime       bool     `yaml:"realtime"`
	Sink           string   `yaml:"sink"`
	LocalDir       string   `yaml:"local_dir"`
	SharedDir      string   `yaml:"shared_dir"`
	Usages         []string `yaml:"usages"`
	AutoStopOnIdle *bool    `yaml:"auto_stop_on_idle"`
}

type GrantConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	TTL    string `yaml:"ttl"`
}

type ControlConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
	RateLimit int    `yaml:"rate_limit"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

// HomeAssistantConfig mirrors the recording indicator into EntityID and,
// when NotifyService is set, sends notifications through it.
type HomeAssistantConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	EntityID      string `yaml:"entity_id"`
	NotifyService string `yaml:"notify_service"`
}

type IndicatorConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references in data before decoding it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 44100
	}
	if c.Capture.FrameBytes == 0 {
		c.Capture.FrameBytes = 2048
	}
	if c.Capture.ReadTimeout == "" {
		c.Capture.ReadTimeout = "250ms"
	}
	if c.Capture.Microphone == "" {
		c.Capture.Microphone = "portaudio"
	}
	if c.Capture.Playback == "" {
		c.Capture.Playback = "loopback"
	}
	if c.Capture.Sink == "" {
		c.Capture.Sink = "local"
	}
	if c.Capture.LocalDir == "" {
		c.Capture.LocalDir = filepath.Join(xdg.DataHome, "callrec", "recordings")
	}
	if c.Capture.SharedDir == "" {
		c.Capture.SharedDir = xdg.UserDirs.Download
	}
	if len(c.Capture.Usages) == 0 {
		for _, u := range domain.DefaultUsages() {
			c.Capture.Usages = append(c.Capture.Usages, string(u))
		}
	}
	if c.Capture.AutoStopOnIdle == nil {
		on := true
		c.Capture.AutoStopOnIdle = &on
	}
	if c.Grant.Issuer == "" {
		c.Grant.Issuer = "callrec"
	}
	if c.Grant.TTL == "" {
		c.Grant.TTL = "1h"
	}
	if c.Control.Addr == "" {
		c.Control.Addr = "127.0.0.1:8080"
	}
	if c.Control.RateLimit == 0 {
		c.Control.RateLimit = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be positive"))
	}
	if c.Capture.FrameBytes <= 0 || c.Capture.FrameBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("capture.frame_bytes must be a positive even number, got %d", c.Capture.FrameBytes))
	}
	if _, err := parsePositive(c.Capture.ReadTimeout); err != nil {
		errs = append(errs, fmt.Errorf("capture.read_timeout: %w", err))
	}

	switch c.Capture.Microphone {
	case "portaudio":
	case "file":
		if c.Capture.MicFile == "" {
			errs = append(errs, fmt.Errorf("capture.mic_file is required when microphone is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.microphone: unknown source %q", c.Capture.Microphone))
	}

	switch c.Capture.Playback {
	case "loopback":
	case "file":
		if c.Capture.PlaybackFile == "" {
			errs = append(errs, fmt.Errorf("capture.playback_file is required when playback is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.playback: unknown source %q", c.Capture.Playback))
	}

	switch c.Capture.Sink {
	case "local", "shared":
	default:
		errs = append(errs, fmt.Errorf("capture.sink: unknown sink %q", c.Capture.Sink))
	}

	for _, u := range c.Capture.Usages {
		switch domain.Usage(u) {
		case domain.UsageVoiceCommunication, domain.UsageMedia:
		default:
			errs = append(errs, fmt.Errorf("capture.usages: unknown usage %q", u))
		}
	}

	if _, err := parsePositive(c.Grant.TTL); err != nil {
		errs = append(errs, fmt.Errorf("grant.ttl: %w", err))
	}
	if c.Control.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("control.rate_limit must not be negative"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	if c.Pushover.Enabled && (c.Pushover.Token == "" || c.Pushover.UserKey == "") {
		errs = append(errs, fmt.Errorf("pushover: token and user_key are required when enabled"))
	}

	if c.HomeAssistant.Enabled && (c.HomeAssistant.URL == "" || c.HomeAssistant.Token == "") {
		errs = append(errs, fmt.Errorf("homeassistant: url and token are required when enabled"))
	}

	return errors.Join(errs...)
}

func (c CaptureConfig) ReadTimeoutDuration() time.Duration {
	d, _ := parsePositive(c.ReadTimeout)
	return d
}

func (c CaptureConfig) DomainUsages() []domain.Usage {
	usages := make([]domain.Usage, 0, len(c.Usages))
	for _, u := range c.Usages {
		usages = append(usages, domain.Usage(u))
	}
	return usages
}

func (c GrantConfig) TTLDuration() time.Duration {
	d, _ := parsePositive(c.TTL)
	return d
}

func parsePositive(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
