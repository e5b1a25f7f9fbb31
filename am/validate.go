package am

import (
	"strings"

	"github.com/teranos/AMS/errors"
)

// Validate checks settings that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "", IndexBackendMemory:
	case IndexBackendRedis:
		if c.Index.RedisAddr == "" {
			return errors.NewInvalidRequestError("index.redis_addr is required for the redis backend")
		}
	default:
		return errors.NewInvalidRequestError("index.backend must be %s or %s, got %q",
			IndexBackendRedis, IndexBackendMemory, c.Index.Backend)
	}

	switch strings.ToLower(strings.TrimSpace(c.PBCore.UnknownTypePolicy)) {
	case "", "drop", "keep":
	default:
		return errors.NewInvalidRequestError("pbcore.unknown_type_policy must be drop or keep, got %q", c.PBCore.UnknownTypePolicy)
	}

	if strings.TrimSpace(c.PBCore.Authority) == "" {
		return errors.NewInvalidRequestError("pbcore.authority must not be empty")
	}
	if c.Pulse.Workers < 0 {
		return errors.NewInvalidRequestError("pulse.workers must not be negative")
	}
	if c.Pulse.JobsPerSecond < 0 {
		return errors.NewInvalidRequestError("pulse.jobs_per_second must not be negative")
	}
	return nil
}
