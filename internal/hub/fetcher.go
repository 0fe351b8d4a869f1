package hub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rtm0/era5wind/internal/index"
)

// Fetcher downloads hub files into a directory tree mirroring the hub paths,
// skipping files an Index
// reports as already fetched and still present on disk.
type Fetcher struct {
	logger *slog.Logger
	cli    *Client
	idx    index.Index
	dir    string
}

// NewFetcher creates a Fetcher. idx may be nil.
func NewFetcher(logger *slog.Logger, cli *Client, idx index.Index, dir string) *Fetcher {
	return &Fetcher{logger: logger, cli: cli, idx: idx, dir: dir}
}

// localPath mirrors the hub path p below the download directory.
func (f *Fetcher) localPath(p string) (string, error) {
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return "", fmt.Errorf("hub path %q must not contain ..", p)
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" {
		return "", fmt.Errorf("hub path %q names no file", p)
	}
	return filepath.Join(f.dir, filepath.FromSlash(rel)), nil
}

// Get makes the hub path p available locally and returns its local path.
// fetched is false when an earlier download was reused.
func (f *Fetcher) Get(ctx context.Context, p string) (local string, fetched bool, err error) {
	if f.idx != nil {
		local, ok, err := f.idx.Seen(ctx, p)
		if err != nil {
			f.logger.Warn("cannot query fetch index", "path", p, "err", err)
		} else if ok {
			if _, err := os.Stat(local); err == nil {
				f.logger.Info("already fetched", "path", p, "local", local)
				return local, false, nil
			} else if !errors.Is(err, fs.ErrNotExist) {
				return "", false, err
			}
		}
	}

	local, err = f.localPath(p)
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", false, err
	}
	n, err := f.cli.Fetch(ctx, p, local)
	if err != nil {
		return "", false, err
	}
	f.logger.Info("fetched", "path", p, "local", local, "bytes", n)
	if f.idx != nil {
		e := index.Entry{Key: p, URL: f.cli.URL(p), Path: local, Size: n}
		if err := f.idx.Mark(ctx, e); err != nil {
			return local, true, err
		}
	}
	return local, true, nil
}
