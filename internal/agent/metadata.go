package agent

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"blissful-agent/internal/blissful"
)

// AlbumInfoFetcher is the slice of the service client the cache needs.
type AlbumInfoFetcher interface {
	GetAlbumInfo(ctx context.Context, albumID string) (*blissful.AlbumInfo, error)
}

// MetadataCache holds the metadata for at most one album: the one whose
// detail page is currently being viewed. Repeated scans of the same page
// hit the slot without a network call; navigating to another album
// discards it. A singleflight group bounds overlapping scans to one fetch
// per identifier.
type MetadataCache struct {
	fetcher AlbumInfoFetcher

	mu       sync.Mutex
	cachedID string
	cached   *AlbumMetadata
	// currentID is the identifier of the most recent Get call. A fetch
	// that resolves after the current identifier has moved on is discarded
	// instead of polluting the slot (stale-response rejection).
	currentID string

	flight singleflight.Group
}

// NewMetadataCache builds a cache backed by the given fetcher.
func NewMetadataCache(fetcher AlbumInfoFetcher) *MetadataCache {
	return &MetadataCache{fetcher: fetcher}
}

// Get returns the metadata for id. A nil result with a nil error means
// "context not yet available, retry on next scan"; it is never terminal.
func (c *MetadataCache) Get(ctx context.Context, id string, forceRefresh bool) (*AlbumMetadata, error) {
	if id == "" {
		return nil, nil
	}

	c.mu.Lock()
	c.currentID = id
	if c.cachedID != "" && c.cachedID != id {
		c.cachedID, c.cached = "", nil
	}
	if forceRefresh && c.cachedID == id {
		c.cachedID, c.cached = "", nil
	}
	if c.cachedID == id && c.cached != nil {
		meta := c.cached
		c.mu.Unlock()
		return meta, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(id, func() (any, error) {
		info, err := c.fetcher.GetAlbumInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		if !info.Success {
			return nil, fmt.Errorf("album info for %s: %s", id, info.Error)
		}
		return &AlbumMetadata{
			Title:          info.Title,
			Artist:         info.Artist,
			ForeignAlbumID: info.ForeignAlbumID,
			LidarrAlbumID:  info.LidarrAlbumID,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	meta := v.(*AlbumMetadata)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentID != id {
		// The page moved on while this fetch was in flight.
		return nil, nil
	}
	c.cachedID, c.cached = id, meta
	return meta, nil
}

// Invalidate empties the slot.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedID, c.cached = "", nil
}

// Cached returns the current slot contents without touching the network.
func (c *MetadataCache) Cached() (*AlbumMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil {
		return nil, false
	}
	return c.cached, true
}
