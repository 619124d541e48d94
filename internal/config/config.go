package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	TemplateMetaURL    string   `mapstructure:"TEMPLATE_META_URL"`
	OCRServiceURL      string   `mapstructure:"OCR_SERVICE_URL"`
	AIMapperURL        string   `mapstructure:"AI_MAPPER_URL"`
	AITimeoutSeconds   int      `mapstructure:"AI_TIMEOUT_SECONDS"`
	OCRTimeoutSeconds  int      `mapstructure:"OCR_TIMEOUT_SECONDS"`
	InventoryCacheTTL  int      `mapstructure:"INVENTORY_CACHE_TTL_MINUTES"`
	TrustedConfidence  float64  `mapstructure:"TRUSTED_CONFIDENCE"`
	RequestTimeoutSecs int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AI_TIMEOUT_SECONDS", 20)
	v.SetDefault("OCR_TIMEOUT_SECONDS", 30)
	v.SetDefault("INVENTORY_CACHE_TTL_MINUTES", 10)
	v.SetDefault("TRUSTED_CONFIDENCE", 0.85)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 60)
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("TEMPLATE_META_URL")
	v.BindEnv("OCR_SERVICE_URL")
	v.BindEnv("AI_MAPPER_URL")
	v.BindEnv("AI_TIMEOUT_SECONDS")
	v.BindEnv("OCR_TIMEOUT_SECONDS")
	v.BindEnv("INVENTORY_CACHE_TTL_MINUTES")
	v.BindEnv("TRUSTED_CONFIDENCE")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSeconds) * time.Second
}

func (c *Config) InventoryTTL() time.Duration {
	return time.Duration(c.InventoryCacheTTL) * time.Minute
}

// Validate checks that the configuration is safe to run. The OCR and AI
// service URLs are optional: leaving one unset only disables the
// corresponding enhancement pass. Thresholds and timeouts must still be sane.
func (c *Config) Validate() error {
	if c.TrustedConfidence < 0 || c.TrustedConfidence > 1 {
		return fmt.Errorf("TRUSTED_CONFIDENCE must be between 0.0 and 1.0, got %v", c.TrustedConfidence)
	}
	if c.AITimeoutSeconds <= 0 {
		return fmt.Errorf("AI_TIMEOUT_SECONDS must be positive, got %d", c.AITimeoutSeconds)
	}
	if c.OCRTimeoutSeconds <= 0 {
		return fmt.Errorf("OCR_TIMEOUT_SECONDS must be positive, got %d", c.OCRTimeoutSeconds)
	}
	if c.InventoryCacheTTL <= 0 {
		return fmt.Errorf("INVENTORY_CACHE_TTL_MINUTES must be positive, got %d", c.InventoryCacheTTL)
	}
	return nil
}
