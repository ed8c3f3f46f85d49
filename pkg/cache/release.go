package cache

import (
	"context"
	"time"

	"github.com/flanksource/eden-updater/pkg/types"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

// FetchFunc looks up the latest release of a channel
type FetchFunc func(ctx context.Context, ch types.Channel) (*types.UpdateInfo, error)

// ReleaseCache remembers the latest release per channel for a TTL. It is owned by whoever
// checks for updates; the installer never consults it.
type ReleaseCache struct {
	ttl   time.Duration
	items *gocache.Cache
}

func NewReleaseCache(ttl time.Duration) *ReleaseCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ReleaseCache{ttl: ttl, items: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached release of a channel, calling fetch when it is missing, expired
// or forceRefresh is set. Failed fetches are not cached.
func (c *ReleaseCache) Get(ctx context.Context, ch types.Channel, forceRefresh bool, fetch FetchFunc) (*types.UpdateInfo, error) {
	if !forceRefresh {
		if v, ok := c.items.Get(ch.String()); ok {
			log.Tracef("release cache hit for %s", ch)
			info := v.(types.UpdateInfo)
			return &info, nil
		}
	}

	info, err := fetch(ctx, ch)
	if err != nil {
		return nil, err
	}
	c.items.Set(ch.String(), *info, gocache.DefaultExpiration)
	return info, nil
}

// Invalidate drops a channel, or every channel when none is given
func (c *ReleaseCache) Invalidate(channels ...types.Channel) {
	if len(channels) == 0 {
		c.items.Flush()
		return
	}
	for _, ch := range channels {
		c.items.Delete(ch.String())
	}
}
