package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from every environment variable the loader reads.
const EnvPrefix = "EXFIL_"

// ConfigFileEnv names an optional YAML file layered between defaults and environment.
const ConfigFileEnv = EnvPrefix + "CONFIG_FILE"

// ErrNoCaptureSource is returned when every capture source is disabled.
var ErrNoCaptureSource = errors.New("no capture source configured")

// AppConfig is the root configuration for exfild.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env       string          `koanf:"env" validate:"required,oneof=dev prod"`
	Log       LoggingConfig   `koanf:"log" validate:"required"`
	Detector  DetectorConfig  `koanf:"detector" validate:"required"`
	Frequency FrequencyConfig `koanf:"frequency" validate:"required"`
	Whitelist WhitelistConfig `koanf:"whitelist" validate:"required"`
	Alerts    AlertsConfig    `koanf:"alerts" validate:"required"`
	Capture   CaptureConfig   `koanf:"capture"`
	HTTP      HTTPConfig      `koanf:"http"`
}

// LoggingConfig controls log verbosity: "debug", "info", "warn", or "error".
// Per-query observation lines are only written at debug.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// DetectorConfig holds the rule thresholds and the event queue depth.
type DetectorConfig struct {
	EntropyThreshold   float64       `koanf:"entropy_threshold" validate:"gt=0"`
	CriticalEntropy    float64       `koanf:"critical_entropy" validate:"gtefield=EntropyThreshold"`
	LengthThreshold    int           `koanf:"length_threshold" validate:"gte=1"`
	FrequencyThreshold int           `koanf:"frequency_threshold" validate:"gte=1"`
	Window             time.Duration `koanf:"window" validate:"gt=0s"`
	QueueSize          int           `koanf:"queue_size" validate:"gte=1"`
}

// FrequencyConfig bounds the per-domain tracker.
type FrequencyConfig struct {
	MaxDomains    int           `koanf:"max_domains" validate:"gte=1"`
	PruneInterval time.Duration `koanf:"prune_interval" validate:"gt=0s"`
}

// WhitelistConfig lists trusted domains and where extra lists come from.
// An empty DB keeps the index in memory.
type WhitelistConfig struct {
	Domains   []string `koanf:"domains" validate:"dive,required"`
	Dir       string   `koanf:"dir"`
	DB        string   `koanf:"db"`
	CacheSize int      `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64  `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

// AlertsConfig configures where raised alerts go.
type AlertsConfig struct {
	Path        string `koanf:"path" validate:"required"`
	Console     bool   `koanf:"console"`
	NATSURL     string `koanf:"nats_url" validate:"omitempty,url"`
	NATSSubject string `koanf:"nats_subject" validate:"required"`
}

// CaptureConfig enables query sources. Empty values disable a source.
type CaptureConfig struct {
	UDPAddr      string `koanf:"udp_addr" validate:"omitempty,host_port"`
	DnstapSocket string `koanf:"dnstap_socket"`
	ReplayFile   string `koanf:"replay_file"`
}

// HTTPConfig holds the metrics and alert API listener. Empty disables it.
type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,host_port"`
}

// DefaultWhitelist is the set of high-volume domains trusted out of the box.
var DefaultWhitelist = []string{
	"google.com", "googleapis.com", "googlevideo.com", "gstatic.com",
	"youtube.com", "ytimg.com", "doubleclick.net",
	"mozilla.com", "mozilla.net", "firefox.com",
	"reddit.com", "redd.it", "redditmedia.com", "redditstatic.com",
	"amazon.com", "amazonaws.com", "cloudfront.net",
	"akamaized.net", "fastly.net", "cloudflare.com",
	"microsoft.com", "windows.com", "live.com",
	"spotify.com", "scdn.co",
	"apple.com", "icloud.com",
	"twitter.com", "twimg.com",
	"instagram.com", "fbcdn.net", "facebook.com",
	"discord.com", "discordapp.com",
}

// DEFAULT_APP_CONFIG is the configuration used before any file or environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{Level: "info"},
	Detector: DetectorConfig{
		EntropyThreshold:   3.8,
		CriticalEntropy:    4.0,
		LengthThreshold:    52,
		FrequencyThreshold: 20,
		Window:             60 * time.Second,
		QueueSize:          1024,
	},
	Frequency: FrequencyConfig{
		MaxDomains:    100_000,
		PruneInterval: 30 * time.Second,
	},
	Whitelist: WhitelistConfig{
		Domains:   DefaultWhitelist,
		CacheSize: 1000,
		FPRate:    0.01,
	},
	Alerts: AlertsConfig{
		Path:        "alerts.log",
		Console:     true,
		NATSSubject: "exfil.alerts",
	},
	Capture: CaptureConfig{
		UDPAddr: ":5353",
	},
	HTTP: HTTPConfig{
		Addr: ":9153",
	},
}

// sections are the nested keys an env var may address, e.g. EXFIL_DETECTOR_WINDOW.
var sections = map[string]struct{}{
	"log":       {},
	"detector":  {},
	"frequency": {},
	"whitelist": {},
	"alerts":    {},
	"capture":   {},
	"http":      {},
}

// ToPolicy returns the detection thresholds as a domain policy.
func (c *AppConfig) ToPolicy() domain.Policy {
	return domain.Policy{
		EntropyThreshold:   c.Detector.EntropyThreshold,
		CriticalEntropy:    c.Detector.CriticalEntropy,
		LengthThreshold:    c.Detector.LengthThreshold,
		FrequencyThreshold: c.Detector.FrequencyThreshold,
		Window:             c.Detector.Window,
	}
}

// HasCapture reports whether at least one capture source is enabled.
func (c CaptureConfig) HasCapture() bool {
	return c.UDPAddr != "" || c.DnstapSocket != "" || c.ReplayFile != ""
}

// validHostPort accepts "host:port" and ":port" with a port in 1..65535.
func validHostPort(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envKey maps a prefixed variable name onto a koanf path.
// EXFIL_DETECTOR_ENTROPY_THRESHOLD becomes detector.entropy_threshold.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if section, rest, ok := strings.Cut(key, "_"); ok {
		if _, known := sections[section]; known {
			return section + "." + rest
		}
	}
	return key
}

// envLoader loads EXFIL_ variables. Values holding spaces or commas become lists.
// It is a variable so tests can replace it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(key)
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// fileLoader layers the YAML file named by EXFIL_CONFIG_FILE, if any.
var fileLoader = func(k *koanf.Koanf) error {
	path := strings.TrimSpace(os.Getenv(ConfigFileEnv))
	if path == "" {
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation adds the "host_port" tag to v.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load builds an AppConfig from defaults, the optional YAML file and the
// environment, in that order, and validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if !cfg.Capture.HasCapture() {
		return nil, ErrNoCaptureSource
	}

	return &cfg, nil
}
