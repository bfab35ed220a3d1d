package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/casapps/landregistry/src/pkg/utils"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "LANDREGISTRY"

// Load loads configuration from environment variables and config files
func Load() (*viper.Viper, error) {
	return LoadFile("")
}

// LoadFile loads configuration, reading file if it is not empty and
// otherwise searching the default config locations
func LoadFile(file string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		for _, dir := range ConfigDirs(utils.IsElevated()) {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")

		// Read config file (ignore if not found)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Generate secret key if not set
	if v.GetString("security.secret_key") == "" {
		key, err := generateSecretKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret key: %w", err)
		}
		v.Set("security.secret_key", key)
	}

	return v, nil
}

// SetDefaults installs every default value on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "landregistry")
	v.SetDefault("environment", "development")
	v.SetDefault("debug", false)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "landregistry.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", 300)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")

	// Security defaults
	v.SetDefault("security.secret_key", "")
	v.SetDefault("security.token_ttl", "24h")
	v.SetDefault("security.password_min_length", 8)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", "GET,POST,PUT,DELETE,OPTIONS")
	v.SetDefault("cors.allowed_headers", "Authorization,Content-Type,X-Request-ID")
	v.SetDefault("cors.exposed_headers", "Content-Disposition,X-Request-ID")
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("cors.allow_credentials", false)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.retention", "2160h")

	// Rate limiting defaults (requests per minute)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.authenticated_api", 1000)
	v.SetDefault("ratelimit.anonymous_api", 100)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.key_prefix", "landregistry:")
	v.SetDefault("cache.stats_ttl", "30s")
	v.SetDefault("cache.session_ttl", "1m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Ledger defaults
	v.SetDefault("ledger.type", "memory") // memory or ethereum
	v.SetDefault("ledger.network", "Polygon Amoy")
	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.contract_address", "")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.chain_id", 80002)
	v.SetDefault("ledger.timeout", "2m")

	// Transfer defaults
	v.SetDefault("transfers.processing_timeout", "10m")
	v.SetDefault("transfers.reconcile_schedule", "@every 1m")

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.from.address", "")
	v.SetDefault("email.from.name", "Land Registry")

	// Feature flags
	v.SetDefault("features.registration", true)
	v.SetDefault("features.demo_login", true)

	// Demo accounts
	v.SetDefault("demo.user.username", "demo")
	v.SetDefault("demo.user.password", "demo12345")
	v.SetDefault("demo.admin.username", "demoadmin")
	v.SetDefault("demo.admin.password", "admin12345")
}

func generateSecretKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ValidateConfig validates the configuration
func ValidateConfig(v *viper.Viper) error {
	// Validate database configuration
	dbType := v.GetString("database.type")
	switch dbType {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql":
		if v.GetString("database.dsn") == "" {
			return fmt.Errorf("database.dsn is required for %s", dbType)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}

	// Validate server configuration
	port := v.GetInt("server.port")
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	// Validate security configuration
	if v.GetString("security.secret_key") == "" {
		return fmt.Errorf("security.secret_key is required")
	}
	if v.GetDuration("security.token_ttl") <= 0 {
		return fmt.Errorf("security.token_ttl must be positive")
	}

	// Validate ledger configuration
	switch v.GetString("ledger.type") {
	case "memory":
	case "ethereum":
		for _, key := range []string{"ledger.rpc_url", "ledger.contract_address", "ledger.private_key"} {
			if v.GetString(key) == "" {
				return fmt.Errorf("%s is required for the ethereum ledger", key)
			}
		}
	default:
		return fmt.Errorf("unsupported ledger type: %s", v.GetString("ledger.type"))
	}

	// Validate email configuration if enabled
	if v.GetBool("email.enabled") {
		if v.GetString("email.smtp.host") == "" {
			return fmt.Errorf("email.smtp.host is required when email is enabled")
		}
		if v.GetString("email.from.address") == "" {
			return fmt.Errorf("email.from.address is required when email is enabled")
		}
	}

	if v.GetDuration("transfers.processing_timeout") <= 0 {
		return fmt.Errorf("transfers.processing_timeout must be positive")
	}
	if v.GetDuration("ledger.timeout") <= 0 {
		return fmt.Errorf("ledger.timeout must be positive")
	}
	// the reconciler must not fail a transfer whose ledger call is still running
	if v.GetDuration("ledger.timeout") >= v.GetDuration("transfers.processing_timeout") {
		return fmt.Errorf("ledger.timeout (%s) must be shorter than transfers.processing_timeout (%s)",
			v.GetDuration("ledger.timeout"), v.GetDuration("transfers.processing_timeout"))
	}

	return nil
}
