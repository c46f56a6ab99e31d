package notify

import (
	"context"

	"github.com/beacon-notify/beacon/internal/client"
	"github.com/beacon-notify/beacon/internal/imagecache"
	"github.com/beacon-notify/beacon/internal/models"
)

// CachedIconResolver resolves application icons through the shared image
// cache, downloading from the owning server on a miss
type CachedIconResolver struct {
	api   *client.APIClient
	cache *imagecache.Cache
}

// NewCachedIconResolver creates an icon resolver backed by the image cache
func NewCachedIconResolver(api *client.APIClient, cache *imagecache.Cache) *CachedIconResolver {
	return &CachedIconResolver{api: api, cache: cache}
}

// ResolveIcon returns a local file path for an application icon. The cache
// key combines server identity and icon reference, so identical paths on
// different servers stay distinct.
func (r *CachedIconResolver) ResolveIcon(ctx context.Context, server *models.ServerConfig, imagePath string) (string, error) {
	key := server.ID.String() + "/" + imagePath
	return r.cache.Resolve(ctx, key, func(ctx context.Context) ([]byte, error) {
		return r.api.DownloadImage(ctx, server, imagePath)
	})
}
