// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"risk-engine/internal/models"
)

// Config holds the server configuration. Every field is read from the
// environment variable named by its mapstructure tag.
type Config struct {
	Port        string `mapstructure:"PORT" validate:"required,numeric"`
	Environment string `mapstructure:"ENVIRONMENT" validate:"oneof=development staging production test"`
	LogLevel    string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// Memory stores are used when DATABASE_URL is empty.
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	AnalysisStore string `mapstructure:"ANALYSIS_STORE" validate:"oneof=postgres mongo"`
	MongoURI      string `mapstructure:"MONGO_URI" validate:"required_if=AnalysisStore mongo"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE" validate:"required"`
	RedisURL      string `mapstructure:"REDIS_URL"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	AlertTopic   string `mapstructure:"ALERT_TOPIC" validate:"required"`
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`

	ReputationAPIURL   string        `mapstructure:"REPUTATION_API_URL" validate:"omitempty,url"`
	ReputationAPIKey   string        `mapstructure:"REPUTATION_API_KEY"`
	ReputationRPS      float64       `mapstructure:"REPUTATION_RPS" validate:"gt=0"`
	ReputationTimeout  time.Duration `mapstructure:"REPUTATION_TIMEOUT" validate:"gt=0"`
	ReputationCacheTTL time.Duration `mapstructure:"REPUTATION_CACHE_TTL" validate:"gt=0"`
	DefaultCountry     string        `mapstructure:"DEFAULT_COUNTRY" validate:"len=2"`

	AnalyzerTimeout          time.Duration `mapstructure:"ANALYZER_TIMEOUT" validate:"gt=0"`
	AnalysisTimeout          time.Duration `mapstructure:"ANALYSIS_TIMEOUT" validate:"gtefield=AnalyzerTimeout"`
	ReviewEscalationInterval time.Duration `mapstructure:"REVIEW_ESCALATION_INTERVAL" validate:"gt=0"`
	ShutdownTimeout          time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8085")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ANALYSIS_STORE", "postgres")
	v.SetDefault("MONGO_DATABASE", "risk_engine")
	v.SetDefault("ALERT_TOPIC", "risk.operator-alerts")
	v.SetDefault("REPUTATION_RPS", 20)
	v.SetDefault("REPUTATION_TIMEOUT", "2s")
	v.SetDefault("REPUTATION_CACHE_TTL", "10m")
	v.SetDefault("DEFAULT_COUNTRY", "US")
	v.SetDefault("ANALYZER_TIMEOUT", "2s")
	v.SetDefault("ANALYSIS_TIMEOUT", "5s")
	v.SetDefault("REVIEW_ESCALATION_INTERVAL", "5m")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
}

// Load reads .env (if present), an optional config.yaml and the
// environment, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := bindEnv(v, &cfg); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// bindEnv registers every mapstructure tag so Unmarshal sees env-only keys.
func bindEnv(v *viper.Viper, cfg interface{}) error {
	t := reflect.TypeOf(cfg).Elem()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		if err := v.BindEnv(tag); err != nil {
			return err
		}
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultSettings returns the built-in risk settings with the configured
// timeouts. Persisted settings take precedence at start-up.
func (c *Config) DefaultSettings() models.Settings {
	s := models.DefaultSettings()
	s.AnalyzerTimeoutMS = c.AnalyzerTimeout.Milliseconds()
	s.AnalysisTimeoutMS = c.AnalysisTimeout.Milliseconds()
	return s
}
