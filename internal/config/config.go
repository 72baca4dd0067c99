package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "AWCF"

// Config holds all configuration for the checkout fields service
type Config struct {
	// Server configuration
	Listen          string        `mapstructure:"listen" validate:"required"`
	DataDir         string        `mapstructure:"data_dir" validate:"required"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`

	// TLS configuration
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	Auth       AuthConfig       `mapstructure:"auth"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	OrderStore OrderStoreConfig `mapstructure:"order_store"`
}

// AuthConfig defines admin authentication
type AuthConfig struct {
	Enable    bool          `mapstructure:"enable"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`

	// Optional password login
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	LoginMaxAttempts int           `mapstructure:"login_max_attempts" validate:"gte=1"`
	LoginWindow      time.Duration `mapstructure:"login_window" validate:"gt=0"`

	// Public proxies (IP or CIDR) allowed to set X-Forwarded-For. Private
	// addresses are always trusted.
	TrustedProxies []string `mapstructure:"trusted_proxies" validate:"dive,ip|cidr"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path" validate:"startswith=/"`
}

// OrderStoreConfig selects the order metadata engine
type OrderStoreConfig struct {
	Engine     string        `mapstructure:"engine" validate:"oneof=badger pebble"`
	SyncWrites bool          `mapstructure:"sync_writes"`
	GCInterval time.Duration `mapstructure:"gc_interval" validate:"gte=0"`
}

// Load loads configuration from defaults, flags, an optional config file
// and AWCF_* environment variables
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8090")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("enable_tls", false)
	v.SetDefault("cert_file", "")
	v.SetDefault("key_file", "")

	// Auth is on by default; jwt_secret has no default
	v.SetDefault("auth.enable", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_user", "")
	v.SetDefault("auth.admin_password_hash", "")
	v.SetDefault("auth.login_max_attempts", 5)
	v.SetDefault("auth.login_window", time.Minute)
	v.SetDefault("auth.trusted_proxies", []string{})

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("order_store.engine", "badger")
	v.SetDefault("order_store.sync_writes", false)
	v.SetDefault("order_store.gc_interval", 5*time.Minute)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":      "listen",
		"data-dir":    "data_dir",
		"log-level":   "log_level",
		"log-format":  "log_format",
		"tls-cert":    "cert_file",
		"tls-key":     "key_file",
		"order-store": "order_store.engine",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	if cfg.EnableTLS && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
	}

	if cfg.Auth.Enable && len(cfg.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters when auth is enabled (set %s_AUTH_JWT_SECRET)", EnvPrefix)
	}

	if (cfg.Auth.AdminUser == "") != (cfg.Auth.AdminPasswordHash == "") {
		return fmt.Errorf("auth.admin_user and auth.admin_password_hash must be set together")
	}

	return nil
}

// formatValidationError turns validator output into one readable error
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "startswith":
			msgs = append(msgs, fmt.Sprintf("%s must start with %q", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, e.Tag(), e.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
