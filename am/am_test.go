package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "ams.db", cfg.Database.Path)
	assert.Equal(t, IndexBackendMemory, cfg.Index.Backend)
	assert.Equal(t, DefaultAuthority, cfg.PBCore.Authority)
	assert.Equal(t, "drop", cfg.PBCore.UnknownTypePolicy)
	assert.Equal(t, 1, cfg.Pulse.Workers)
	assert.Equal(t, 500, cfg.Pulse.PollIntervalMS)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
[database]
path = "/var/lib/ams/ams.db"

[index]
backend = "redis"
redis_addr = "redis:6379"

[pbcore]
unknown_type_policy = "keep"

[pulse]
workers = 4
jobs_per_second = 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ams/ams.db", cfg.Database.Path)
	assert.Equal(t, IndexBackendRedis, cfg.Index.Backend)
	assert.Equal(t, "redis:6379", cfg.Index.RedisAddr)
	assert.Equal(t, "keep", cfg.PBCore.UnknownTypePolicy)
	assert.Equal(t, 4, cfg.Pulse.Workers)
	assert.InDelta(t, 2.5, cfg.Pulse.JobsPerSecond, 0.0001)
	// Untouched keys keep their defaults
	assert.Equal(t, DefaultAuthority, cfg.PBCore.Authority)
	assert.Equal(t, "ams", cfg.GetIndexPrefix())
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestGetDatabasePathFallback(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "ams.db", cfg.GetDatabasePath())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		require.NoError(t, err)
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Index.Backend = "solr" }},
		{"redis without address", func(c *Config) { c.Index.Backend = IndexBackendRedis; c.Index.RedisAddr = "" }},
		{"unknown type policy", func(c *Config) { c.PBCore.UnknownTypePolicy = "guess" }},
		{"empty authority", func(c *Config) { c.PBCore.Authority = " " }},
		{"negative workers", func(c *Config) { c.Pulse.Workers = -1 }},
		{"negative rate", func(c *Config) { c.Pulse.JobsPerSecond = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
