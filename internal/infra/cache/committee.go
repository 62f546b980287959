package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
)

const (
	defaultExpiration = 30 * time.Minute
	cleanupInterval   = 45 * time.Minute
	remoteExpiration  = int32(24 * 3600)
)

// Remote is the subset of *memcache.Client the cache needs.
type Remote interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
}

// CommitteeCache keeps committee selections in process and, when a remote
// is given, shares them with other nodes through memcached.
// Remote failures only cost a recomputation.
type CommitteeCache struct {
	local  *gocache.Cache
	remote Remote
	logger *zap.Logger
}

func NewCommitteeCache(remote Remote, logger *zap.Logger) *CommitteeCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommitteeCache{
		local:  gocache.New(defaultExpiration, cleanupInterval),
		remote: remote,
		logger: logger,
	}
}

func (c *CommitteeCache) Get(ctx context.Context, key string) ([]attestlend.Witness, bool) {
	if x, found := c.local.Get(key); found {
		return x.([]attestlend.Witness), true
	}
	if c.remote == nil {
		return nil, false
	}

	item, err := c.remote.Get(key)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			c.logger.Debug("memcached get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var committee []attestlend.Witness
	if err := json.Unmarshal(item.Value, &committee); err != nil {
		c.logger.Warn("dropping malformed committee", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	c.local.Set(key, committee, gocache.DefaultExpiration)
	return committee, true
}

func (c *CommitteeCache) Set(ctx context.Context, key string, committee []attestlend.Witness) {
	c.local.Set(key, committee, gocache.DefaultExpiration)
	if c.remote == nil {
		return
	}

	value, err := json.Marshal(committee)
	if err != nil {
		return
	}
	err = c.remote.Set(&memcache.Item{Key: key, Value: value, Expiration: remoteExpiration})
	if err != nil {
		c.logger.Debug("memcached set failed", zap.String("key", key), zap.Error(err))
	}
}
