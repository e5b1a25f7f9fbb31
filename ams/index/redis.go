package index

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// RedisIndex stores documents as JSON strings under <prefix>:doc:<id> and
// tracks ids in the set <prefix>:ids
type RedisIndex struct {
	client redis.UniversalClient
	prefix string
	logger *zap.SugaredLogger
}

// NewRedisIndex connects to addr and verifies the connection
func NewRedisIndex(ctx context.Context, addr, prefix string, log *zap.SugaredLogger) (*RedisIndex, error) {
	if addr == "" {
		return nil, errors.NewInvalidRequestError("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithDetailf(errors.Wrap(err, "redis ping failed"), "addr: %s", addr)
	}

	idx := NewRedisIndexWithClient(client, prefix, log)
	idx.logger.Infow("Search index connected", "addr", addr, "prefix", idx.prefix)
	return idx, nil
}

// NewRedisIndexWithClient wraps an existing client
func NewRedisIndexWithClient(client redis.UniversalClient, prefix string, log *zap.SugaredLogger) *RedisIndex {
	if prefix == "" {
		prefix = "ams"
	}
	return &RedisIndex{client: client, prefix: prefix, logger: logger.OrNop(log)}
}

func (r *RedisIndex) docKey(id string) string { return r.prefix + ":doc:" + id }
func (r *RedisIndex) idsKey() string         { return r.prefix + ":ids" }

func (r *RedisIndex) Save(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.NewInvalidRequestError("document has no id")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encode indexed document %s", doc.ID)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.docKey(doc.ID), payload, 0)
		p.SAdd(ctx, r.idsKey(), doc.ID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to index %s", doc.ID)
	}
	return nil
}

func (r *RedisIndex) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.docKey(id))
		p.SRem(ctx, r.idsKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to remove %s from index", id)
	}
	return nil
}

func (r *RedisIndex) Get(ctx context.Context, id string) (*Document, error) {
	payload, err := r.client.Get(ctx, r.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.NewNotFoundError("indexed document %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read indexed document %s", id)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode indexed document %s", id)
	}
	return &doc, nil
}

func (r *RedisIndex) IDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list indexed ids")
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the client connection
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
