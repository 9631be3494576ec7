// Package config loads the service configuration from defaults, an optional
// file and HTTPCALC_ prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment variable, e.g. HTTPCALC_HTTP_ADDR for http.addr.
const EnvPrefix = "HTTPCALC"

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Server      ServerConfig      `mapstructure:"server"`
	Compression CompressionConfig `mapstructure:"compression"`
	Log         LogConfig         `mapstructure:"log"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr" validate:"required,hostname_port"`
	Mode              string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// AdminConfig configures the listener for /metrics and /healthz. An empty Addr disables it.
type AdminConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

type ServerConfig struct {
	Name           string        `mapstructure:"name"`
	WorkerNum      int           `mapstructure:"worker_num" validate:"gte=0"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"gt=0"`
	LogResponse    bool          `mapstructure:"log_response"`
}

type CompressionConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MinLength int  `mapstructure:"min_length" validate:"gte=0"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Debug        bool   `mapstructure:"debug"`
	Environment  string `mapstructure:"environment"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true,omitempty,url"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" validate:"required_if=Enabled true"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Debug       bool   `mapstructure:"debug"`
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
var defaults = map[string]interface{}{
	"http.addr":                ":8080",
	"http.mode":                "release",
	"http.read_header_timeout": 5 * time.Second,
	"http.shutdown_timeout":    10 * time.Second,
	"admin.addr":               ":9090",
	"server.name":              "httpcalc",
	"server.worker_num":        0,
	"server.handler_timeout":   5 * time.Second,
	"server.log_response":      false,
	"compression.enabled":      true,
	"compression.min_length":   0,
	"log.development":          false,
	"log.level":                "info",
	"telemetry.enabled":        false,
	"telemetry.debug":          false,
	"telemetry.environment":    "production",
	"telemetry.otlp_endpoint":  "localhost:4317",
	"mqtt.enabled":             false,
	"mqtt.broker":              "",
	"mqtt.client_id":           "",
	"mqtt.topic_prefix":        "httpcalc",
	"mqtt.username":            "",
	"mqtt.password":            "",
	"mqtt.debug":               false,
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

// Load reads file into v when it is not empty, then decodes and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// NewLogger builds a development or production zap logger at the configured level.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
