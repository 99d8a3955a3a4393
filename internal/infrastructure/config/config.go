package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Observatory Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   DevicesConfig   `yaml:"devices"`
	Lamps     LampsConfig     `yaml:"lamps"`
	Exposure  ExposureConfig  `yaml:"exposure"`
	Macros    MacrosConfig    `yaml:"macros"`
	AutoPilot AutoPilotConfig `yaml:"auto_pilot"`
}

// SiteConfig contains observatory-site information.
type SiteConfig struct {
	// ID identifies the observatory site (e.g., "north", "south").
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DevicesConfig contains settings for the device command bus.
type DevicesConfig struct {
	// DefaultTimeout is the ack timeout for commands, in seconds, when a
	// device has no specific entry in Timeouts.
	DefaultTimeout int `yaml:"default_timeout"`

	// Timeouts maps device names to their command ack timeout in seconds.
	Timeouts map[string]int `yaml:"timeouts"`
}

// LampsConfig contains calibration lamp settings.
type LampsConfig struct {
	// WarmUp maps lamp names to their warm-up time in seconds. A lamp is not
	// considered on until its warm-up has elapsed after the on command.
	WarmUp map[string]int `yaml:"warm_up"`
}

// InstrumentOverheads contains the fixed per-exposure overheads of the slow
// (optical) spectrograph at this site, in seconds.
type InstrumentOverheads struct {
	Flush   int `yaml:"flush"`
	Readout int `yaml:"readout"`
}

// ExposureConfig contains exposure timing settings.
type ExposureConfig struct {
	Overheads InstrumentOverheads `yaml:"overheads"`

	// NIRReadTime is the duration of a single NIR spectrograph read, in
	// seconds. Used to convert read counts to exposure times.
	NIRReadTime float64 `yaml:"nir_read_time"`

	// DefaultExpTime maps design mode (e.g., "bright", "dark") to the default
	// single-exposure time in seconds.
	DefaultExpTime map[string]float64 `yaml:"default_exptime"`

	// FallbackExpTime is used when a design mode has no entry.
	FallbackExpTime float64 `yaml:"fallback_exptime"`
}

// MacrosConfig contains per-macro settings.
type MacrosConfig struct {
	// StageTimeout is the default per-stage deadline in seconds.
	StageTimeout int `yaml:"stage_timeout"`

	GotoField GotoFieldConfig `yaml:"goto_field"`
}

// GotoFieldConfig lists the goto-field stage subsets per field class. A field
// observed again from the same pointing skips slew and calibrations; a cloned
// design skips goto-field entirely.
type GotoFieldConfig struct {
	NewFieldStages    []string `yaml:"new_field_stages"`
	RepeatFieldStages []string `yaml:"repeat_field_stages"`
	ClonedStages      []string `yaml:"cloned_stages"`
}

// AutoPilotConfig contains settings for the continuous observing loop.
type AutoPilotConfig struct {
	// Count is the number of exposures (or dither pairs) per target.
	Count int `yaml:"count"`

	// PreloadAhead is the lead time, in seconds, before the end of the
	// current exposure at which the next target is preloaded.
	PreloadAhead int `yaml:"preload_ahead"`

	// MinGuideRMS is the guider RMS, in arcsec, required before exposing.
	MinGuideRMS float64 `yaml:"min_guide_rms"`

	// GuideWait is the maximum time, in seconds, to wait for the guider to
	// converge below MinGuideRMS.
	GuideWait int `yaml:"guide_wait"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OBSCORE_SECTION_KEY
// For example: OBSCORE_DATABASE_PATH, OBSCORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "north",
			Name:     "Observatory Core",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/obscore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "obscore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Devices: DevicesConfig{
			DefaultTimeout: 60,
			Timeouts:       map[string]int{},
		},
		Lamps: LampsConfig{
			WarmUp: map[string]int{},
		},
		Exposure: ExposureConfig{
			Overheads: InstrumentOverheads{
				Flush:   17,
				Readout: 63,
			},
			NIRReadTime:     10.6,
			FallbackExpTime: 900,
		},
		Macros: MacrosConfig{
			StageTimeout: 1800,
			GotoField: GotoFieldConfig{
				NewFieldStages: []string{
					"slew", "reconfigure", "calibrations", "acquire", "guide",
				},
				RepeatFieldStages: []string{"reconfigure", "acquire", "guide"},
				ClonedStages:      []string{},
			},
		},
		AutoPilot: AutoPilotConfig{
			Count:        1,
			PreloadAhead: 300,
			MinGuideRMS:  1.0,
			GuideWait:    180,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OBSCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("OBSCORE_SITE_ID"); v != "" {
		cfg.Site.ID = v
	}

	// Database
	if v := os.Getenv("OBSCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("OBSCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OBSCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("OBSCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OBSCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("OBSCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Exposure.Overheads.Flush < 0 || c.Exposure.Overheads.Readout < 0 {
		errs = append(errs, "exposure.overheads values must not be negative")
	}

	if c.Exposure.FallbackExpTime <= 0 {
		errs = append(errs, "exposure.fallback_exptime must be positive")
	}

	if c.Devices.DefaultTimeout <= 0 {
		errs = append(errs, "devices.default_timeout must be positive")
	}

	if c.Macros.StageTimeout <= 0 {
		errs = append(errs, "macros.stage_timeout must be positive")
	}

	if c.AutoPilot.Count < 1 {
		errs = append(errs, "auto_pilot.count must be at least 1")
	}

	if c.AutoPilot.PreloadAhead < 0 {
		errs = append(errs, "auto_pilot.preload_ahead must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DeviceTimeout returns the command ack timeout for a device as a Duration.
func (c *Config) DeviceTimeout(device string) time.Duration {
	if secs, ok := c.Devices.Timeouts[device]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(c.Devices.DefaultTimeout) * time.Second
}

// LampWarmUp returns the warm-up time for a lamp as a Duration.
func (c *Config) LampWarmUp(lamp string) time.Duration {
	return time.Duration(c.Lamps.WarmUp[lamp]) * time.Second
}

// StageTimeout returns the default per-stage deadline as a Duration.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Macros.StageTimeout) * time.Second
}

// PreloadAhead returns the auto-pilot preload lead time as a Duration.
func (c *Config) PreloadAhead() time.Duration {
	return time.Duration(c.AutoPilot.PreloadAhead) * time.Second
}

// DefaultExpTime returns the default exposure time, in seconds, for a design
// mode, falling back to FallbackExpTime for unknown modes.
func (c *Config) DefaultExpTime(designMode string) float64 {
	if t, ok := c.Exposure.DefaultExpTime[designMode]; ok && t > 0 {
		return t
	}
	return c.Exposure.FallbackExpTime
}
