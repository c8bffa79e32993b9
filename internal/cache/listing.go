package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stowbox/stowbox/internal/model"
)

// Listing pages are cached per viewer under a version counter. Bumping the
// counter orphans every cached page for that viewer; the pages then expire
// on their own TTL.
const (
	listingVersionPrefix = "listing:ver:"
	listingPagePrefix    = "listing:page:"

	// DefaultListingTTL is the TTL for cached listing pages.
	DefaultListingTTL = time.Minute
	// listingVersionTTL keeps idle counters from living forever.
	listingVersionTTL = 7 * 24 * time.Hour
)

// ListingPage is a cached listing result.
type ListingPage struct {
	Files []*model.File `json:"files"`
	Total int           `json:"total"`
}

// GetListing returns the cached page for viewer and queryKey together with
// the listing version it was looked up under. On ErrCacheMiss the version is
// still valid and is the one a fresh page must be stored under.
func (c *Cache) GetListing(ctx context.Context, viewer, queryKey string) (*ListingPage, int64, error) {
	version, err := c.listingVersion(ctx, viewer)
	if err != nil {
		return nil, 0, err
	}

	data, err := c.client.Get(ctx, listingPageKey(viewer, version, queryKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, version, ErrCacheMiss
		}
		return nil, 0, fmt.Errorf("redis get listing: %w", err)
	}

	var page ListingPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, version, ErrCacheMiss
	}
	return &page, version, nil
}

// SetListing caches a page for viewer under version, the value GetListing
// returned before the page was read. A page read before a concurrent bump
// lands under a version no reader uses any more.
func (c *Cache) SetListing(ctx context.Context, viewer string, version int64, queryKey string, page *ListingPage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	if err := c.client.Set(ctx, listingPageKey(viewer, version, queryKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache listing: %w", err)
	}
	return nil
}

// InvalidateListings bumps the listing version of every viewer.
func (c *Cache) InvalidateListings(ctx context.Context, viewers ...string) error {
	if len(viewers) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, v := range viewers {
		key := listingVersionPrefix + normalizeViewer(v)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, listingVersionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate listings: %w", err)
	}
	return nil
}

func (c *Cache) listingVersion(ctx context.Context, viewer string) (int64, error) {
	v, err := c.client.Get(ctx, listingVersionPrefix+normalizeViewer(viewer)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get listing version: %w", err)
	}
	return v, nil
}

func listingPageKey(viewer string, version int64, queryKey string) string {
	return fmt.Sprintf("%s%s:%d:%s", listingPagePrefix, normalizeViewer(viewer), version, queryKey)
}

func normalizeViewer(viewer string) string {
	return strings.ToLower(strings.TrimSpace(viewer))
}
