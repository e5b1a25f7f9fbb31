package index

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/errors"
)

// Open returns the index backend selected by cfg.Index.Backend
func Open(ctx context.Context, cfg *am.Config, log *zap.SugaredLogger) (Index, error) {
	switch cfg.Index.Backend {
	case am.IndexBackendRedis:
		return NewRedisIndex(ctx, cfg.Index.RedisAddr, cfg.GetIndexPrefix(), log)
	case "", am.IndexBackendMemory:
		return NewMemoryIndex(), nil
	default:
		return nil, errors.NewInvalidRequestError("unknown index backend %q", cfg.Index.Backend)
	}
}
