package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "ams.db")
	v.SetDefault("mirror.path", "ams_mirror.db")

	// Search index defaults
	v.SetDefault("index.backend", IndexBackendMemory)
	v.SetDefault("index.redis_addr", "localhost:6379")
	v.SetDefault("index.prefix", "ams")

	// PBCore mapping defaults
	v.SetDefault("pbcore.authority", DefaultAuthority)
	v.SetDefault("pbcore.unknown_type_policy", "drop")

	// Pulse (async job infrastructure) defaults
	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval_ms", 500)
	v.SetDefault("pulse.jobs_per_second", 0)

	v.SetDefault("destroy.user_email", "")
	v.SetDefault("tracing.enabled", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "AMS_DATABASE_PATH")
	v.BindEnv("index.redis_addr", "AMS_INDEX_REDIS_ADDR")
	v.BindEnv("destroy.user_email", "AMS_DESTROY_USER_EMAIL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "ams.db" // Fallback default
	}
	return c.Database.Path
}

// GetIndexPrefix returns the configured index key prefix
func (c *Config) GetIndexPrefix() string {
	if c.Index.Prefix == "" {
		return "ams"
	}
	return c.Index.Prefix
}
