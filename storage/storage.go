// Package storage keeps catalog images in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"toolhub/models"
)

// ObjectStorage is the subset of an S3-style bucket the service needs.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// MaxImageSize caps a single upload.
const MaxImageSize = 5 << 20

var (
	ErrUnsupportedImage = errors.New("image must be jpeg, png or webp")
	ErrImageTooLarge    = fmt.Errorf("image larger than %d bytes", MaxImageSize)
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Images stores tool and hardware sample pictures under
// <kind>/<item id>/<random>.<ext> and hands back their public URL.
type Images struct {
	backend ObjectStorage
	baseURL string
}

// NewImages serves objects from baseURL, which should point at the bucket root
// (for MinIO: <scheme>://<endpoint>/<bucket>).
func NewImages(backend ObjectStorage, baseURL string) *Images {
	return &Images{backend: backend, baseURL: strings.TrimRight(baseURL, "/")}
}

func (i *Images) Upload(ctx context.Context, ref models.ItemRef, r io.Reader, size int64, contentType string) (string, error) {
	ext, ok := imageExt[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedImage
	}
	if size > MaxImageSize {
		return "", ErrImageTooLarge
	}
	key := fmt.Sprintf("%s/%s/%s%s", ref.Kind(), ref.ID(), uuid.NewString(), ext)
	if err := i.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return i.URL(key), nil
}

func (i *Images) URL(key string) string { return i.baseURL + "/" + key }

// KeyFromURL returns the object key of a URL produced by URL, or false for
// URLs pointing elsewhere.
func (i *Images) KeyFromURL(u string) (string, bool) {
	prefix := i.baseURL + "/"
	if !strings.HasPrefix(u, prefix) || len(u) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(u, prefix), true
}

// Remove deletes a previously uploaded image. Foreign URLs are ignored.
func (i *Images) Remove(ctx context.Context, u string) error {
	k, ok := i.KeyFromURL(u)
	if !ok {
		return nil
	}
	return i.backend.Delete(ctx, k)
}
