package am

// Config represents the AMS configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Index    IndexConfig    `mapstructure:"index"`
	PBCore   PBCoreConfig   `mapstructure:"pbcore"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Pulse    PulseConfig    `mapstructure:"pulse"`
	Destroy  DestroyConfig  `mapstructure:"destroy"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// DatabaseConfig configures the primary SQLite document store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MirrorConfig configures the relational mirror
type MirrorConfig struct {
	Path string `mapstructure:"path"` // SQLite file for the gorm mirror
}

// IndexConfig configures the search index
type IndexConfig struct {
	Backend   string `mapstructure:"backend"`    // "redis" or "memory"
	RedisAddr string `mapstructure:"redis_addr"` // e.g., "localhost:6379"
	Prefix    string `mapstructure:"prefix"`     // key prefix (default: "ams")
}

// PBCoreConfig configures document mapping
type PBCoreConfig struct {
	Authority         string `mapstructure:"authority"`           // identifier source that yields canonical ids
	UnknownTypePolicy string `mapstructure:"unknown_type_policy"` // "drop" or "keep"
}

// AuthzConfig configures the permission gate
type AuthzConfig struct {
	GrantsPath string `mapstructure:"grants_path"` // empty = embedded grants
}

// PulseConfig configures the Pulse async job system
type PulseConfig struct {
	Workers        int     `mapstructure:"workers"`          // Number of concurrent job workers (default: 1)
	PollIntervalMS int     `mapstructure:"poll_interval_ms"` // How often idle workers poll for jobs (default: 500)
	JobsPerSecond  float64 `mapstructure:"jobs_per_second"`  // 0 = unlimited
}

// DestroyConfig configures asset destruction
type DestroyConfig struct {
	UserEmail string `mapstructure:"user_email"` // identity recorded on tombstones
}

// TracingConfig configures OpenTelemetry
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Index backends
const (
	IndexBackendRedis  = "redis"
	IndexBackendMemory = "memory"
)

// DefaultAuthority is the identifier source whose values become canonical asset ids
const DefaultAuthority = "http://americanarchiveinventory.org"

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
