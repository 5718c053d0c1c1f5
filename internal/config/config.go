package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MapsConfig struct {
	APIKey        string `mapstructure:"api_key"`
	OSRMURL       string `mapstructure:"osrm_url"`
	DirectionsURL string `mapstructure:"directions_url"`
}

type SessionConfig struct {
	Dir    string `mapstructure:"dir"`
	Secret string `mapstructure:"secret"`
}

type TrackingConfig struct {
	Mode                string        `mapstructure:"mode"`
	Interval            time.Duration `mapstructure:"interval"`
	TaskName            string        `mapstructure:"task_name"`
	Policy              string        `mapstructure:"policy"`
	ValidateCoordinates bool          `mapstructure:"validate_coordinates"`
	GrantForeground     bool          `mapstructure:"grant_foreground"`
	GrantBackground     bool          `mapstructure:"grant_background"`
	Latitude            float64       `mapstructure:"latitude"`
	Longitude           float64       `mapstructure:"longitude"`
	NMEAFile            string        `mapstructure:"nmea_file"`
}

type RosterConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type LiveConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	GeoKey   string `mapstructure:"geo_key"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type DevBackendConfig struct {
	Addr          string `mapstructure:"addr"`
	AdminName     string `mapstructure:"admin_name"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// AppConfig captures every tunable of the fleet binaries. Values come from
// an optional config.yaml, then FLEET_* environment variables, with
// defaults that let the client run against a local dev backend.
type AppConfig struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Backend     BackendConfig    `mapstructure:"backend"`
	Maps        MapsConfig       `mapstructure:"maps"`
	Session     SessionConfig    `mapstructure:"session"`
	Tracking    TrackingConfig   `mapstructure:"tracking"`
	Roster      RosterConfig     `mapstructure:"roster"`
	Live        LiveConfig       `mapstructure:"live"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Postgres    PostgresConfig   `mapstructure:"postgres"`
	DevBackend  DevBackendConfig `mapstructure:"devbackend"`
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)
	cfg.Live.AllowedOrigins = trimAll(cfg.Live.AllowedOrigins)

	return &cfg, nil
}

// ValidateClient reports every setting the fleet client cannot run with.
func (c *AppConfig) ValidateClient() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid backend.base_url: %w", err))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must be > 0"))
	}
	switch c.Tracking.Mode {
	case "foreground", "background":
	default:
		errs = append(errs, fmt.Errorf("tracking.mode must be foreground or background, got %q", c.Tracking.Mode))
	}
	switch c.Tracking.Policy {
	case "deferred", "high_accuracy":
	default:
		errs = append(errs, fmt.Errorf("tracking.policy must be deferred or high_accuracy, got %q", c.Tracking.Policy))
	}
	if c.Tracking.Interval < time.Second {
		errs = append(errs, fmt.Errorf("tracking.interval must be >= 1s"))
	}
	if c.Roster.RefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("roster.refresh_interval must be >= 1s"))
	}
	if c.Session.Secret == "" {
		errs = append(errs, fmt.Errorf("session.secret is required"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("backend.base_url", "http://127.0.0.1:8000/api")
	v.SetDefault("backend.timeout", "10s")

	v.SetDefault("maps.api_key", "")
	v.SetDefault("maps.osrm_url", "")
	v.SetDefault("maps.directions_url", "https://maps.googleapis.com/maps/api/directions/json")

	v.SetDefault("session.dir", ".fleet")
	v.SetDefault("session.secret", "")

	v.SetDefault("tracking.mode", "foreground")
	v.SetDefault("tracking.interval", "60s")
	v.SetDefault("tracking.task_name", "background-location-task")
	v.SetDefault("tracking.policy", "deferred")
	v.SetDefault("tracking.validate_coordinates", false)
	v.SetDefault("tracking.grant_foreground", true)
	v.SetDefault("tracking.grant_background", false)
	v.SetDefault("tracking.latitude", 26.0667)
	v.SetDefault("tracking.longitude", 50.5577)
	v.SetDefault("tracking.nmea_file", "")

	v.SetDefault("roster.refresh_interval", "30s")

	v.SetDefault("live.addr", "")
	v.SetDefault("live.allowed_origins", "*")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "driver-locations")
	v.SetDefault("kafka.group", "fleet-location-consumer")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.geo_key", "drivers_geo")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrate", false)

	v.SetDefault("devbackend.addr", ":8000")
	v.SetDefault("devbackend.admin_name", "Admin")
	v.SetDefault("devbackend.admin_email", "admin@fleet.local")
	v.SetDefault("devbackend.admin_password", "")
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
