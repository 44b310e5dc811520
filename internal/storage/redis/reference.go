// Package redis implements storefront registries on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/emoji-storefront/internal/domain/checkout"
)

const referencePrefix = "storefront:ref:"

var _ checkout.ReferenceRegistry = (*ReferenceRegistry)(nil)

// ReferenceRegistry stores issued order identifiers with SET NX, so every
// API replica sees the same claims.
type ReferenceRegistry struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewReferenceRegistry creates a registry whose claims expire after ttl.
func NewReferenceRegistry(rdb redis.UniversalClient, ttl time.Duration) *ReferenceRegistry {
	return &ReferenceRegistry{rdb: rdb, ttl: ttl}
}

// Claim binds reference to owner unless another owner holds it.
func (r *ReferenceRegistry) Claim(ctx context.Context, reference, owner string) (bool, error) {
	key := referencePrefix + reference

	ok, err := r.rdb.SetNX(ctx, key, owner, r.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "setnx %s", key)
	}
	if ok {
		return true, nil
	}

	cur, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		return r.rdb.SetNX(ctx, key, owner, r.ttl).Result()
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}
	return cur == owner, nil
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}
