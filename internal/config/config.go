// Package config loads configuration for go-dms commands.
//
// Values are resolved in order: built-in defaults, then an optional YAML
// file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

// Default service configuration.
const (
	DefaultPort        = 8080
	DefaultMQTTBroker  = "tcp://localhost:1883"
	DefaultMQTTClient  = "go-dms"
	DefaultTopicPrefix = "dms"
	DefaultJournalPath = "dms-alerts.db"
	DefaultLogLevel    = "info"
)

// Environment variables that override the file.
const (
	EnvPort        = "DMS_PORT"
	EnvMQTTBroker  = "DMS_MQTT_BROKER"
	EnvJournalPath = "DMS_JOURNAL_PATH"
	EnvLogLevel    = "DMS_LOG_LEVEL"
	EnvWebhookURL  = "DMS_WEBHOOK_URL"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the top-level structure of dms.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Journal JournalConfig `yaml:"journal"`
	Webhook WebhookConfig `yaml:"webhook"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// EngineConfig mirrors driverstate.Config.
type EngineConfig struct {
	CalibrationFrames int     `yaml:"calibration_frames"`
	OpenEAR           float64 `yaml:"open_ear"`
	ClosedEAR         float64 `yaml:"closed_ear"`
	WindowSeconds     float64 `yaml:"window_seconds"`
	ClosedThreshold   float64 `yaml:"closed_threshold"`
	DrowsyFraction    float64 `yaml:"drowsy_fraction"`
	MaxFrameDuration  float64 `yaml:"max_frame_duration"`
	GazeThreshold     float64 `yaml:"gaze_threshold"`
	PoseThreshold     float64 `yaml:"pose_threshold"`
	BlinkDetection    float64 `yaml:"blink_detection_seconds"`

	SuppressDistractionWhileCalibrating bool `yaml:"suppress_distraction_while_calibrating"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebhookConfig enables alert delivery when URL is set.
type WebhookConfig struct {
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
	IncludeCleared bool          `yaml:"include_cleared"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	ds := driverstate.DefaultConfig()
	return Config{
		Server: ServerConfig{Port: DefaultPort},
		Engine: EngineConfig{
			CalibrationFrames: ds.CalibrationFrames,
			OpenEAR:           ds.OpenEAR,
			ClosedEAR:         ds.ClosedEAR,
			WindowSeconds:     ds.WindowSeconds,
			ClosedThreshold:   ds.ClosedThreshold,
			DrowsyFraction:    ds.DrowsyFraction,
			MaxFrameDuration:  ds.MaxFrameDuration,
			GazeThreshold:     ds.GazeThreshold,
			PoseThreshold:     ds.PoseThreshold,
			BlinkDetection:    ds.BlinkDetectionWindow,
		},
		MQTT: MQTTConfig{
			Broker:      DefaultMQTTBroker,
			ClientID:    DefaultMQTTClient,
			TopicPrefix: DefaultTopicPrefix,
			QoS:         1,
		},
		Journal: JournalConfig{Path: DefaultJournalPath},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalid, EnvPort, v)
		}
		c.Server.Port = port
	}
	c.MQTT.Broker = Getenv(EnvMQTTBroker, c.MQTT.Broker)
	c.Journal.Path = Getenv(EnvJournalPath, c.Journal.Path)
	c.Log.Level = Getenv(EnvLogLevel, c.Log.Level)
	c.Webhook.URL = Getenv(EnvWebhookURL, c.Webhook.URL)
	return nil
}

// Validate checks the configuration for values no component can run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if err := c.Engine.Driverstate().Validate(); err != nil {
		return fmt.Errorf("%w: engine: %w", ErrInvalid, err)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrInvalid)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2, got %d", ErrInvalid, c.MQTT.QoS)
		}
	}
	if c.Webhook.URL != "" {
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: webhook.url %q is not an http(s) URL", ErrInvalid, c.Webhook.URL)
		}
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("%w: journal.path is required when the journal is enabled", ErrInvalid)
	}
	return nil
}

// Driverstate converts the engine section into an engine configuration.
func (e EngineConfig) Driverstate() driverstate.Config {
	return driverstate.Config{
		CalibrationFrames:                   e.CalibrationFrames,
		OpenEAR:                             e.OpenEAR,
		ClosedEAR:                           e.ClosedEAR,
		WindowSeconds:                       e.WindowSeconds,
		ClosedThreshold:                     e.ClosedThreshold,
		DrowsyFraction:                      e.DrowsyFraction,
		MaxFrameDuration:                    e.MaxFrameDuration,
		GazeThreshold:                       e.GazeThreshold,
		PoseThreshold:                       e.PoseThreshold,
		BlinkDetectionWindow:                e.BlinkDetection,
		SuppressDistractionWhileCalibrating: e.SuppressDistractionWhileCalibrating,
	}
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Getenv returns the value of key, or def if it is unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
