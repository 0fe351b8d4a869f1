// Package index remembers which hub files were already downloaded so repeated
// fetches can skip them.
package index

import (
	"context"

	"github.com/rtm0/era5wind/internal/catalog"
)

// Entry describes one downloaded file.
type Entry struct {
	Key  string
	URL  string
	Path string
	Size int64
}

// Index is a store of fetched files keyed by their hub path.
type Index interface {
	// Seen returns the local path recorded for key.
	Seen(ctx context.Context, key string) (path string, ok bool, err error)
	Mark(ctx context.Context, e Entry) error
}

type catalogIndex struct {
	c *catalog.Catalog
}

// NewCatalog returns an Index backed by the fetches table of c.
func NewCatalog(c *catalog.Catalog) Index {
	return catalogIndex{c: c}
}

func (ci catalogIndex) Seen(ctx context.Context, key string) (string, bool, error) {
	f, ok, err := ci.c.LookupFetch(ctx, key)
	return f.Path, ok, err
}

func (ci catalogIndex) Mark(ctx context.Context, e Entry) error {
	return ci.c.RecordFetch(ctx, e.Key, e.URL, e.Path, e.Size)
}
