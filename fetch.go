package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rtm0/era5wind/internal/catalog"
	"github.com/rtm0/era5wind/internal/config"
	"github.com/rtm0/era5wind/internal/hub"
	"github.com/rtm0/era5wind/internal/index"
)

// hubFlags configure access to the data hub.
type hubFlags struct {
	envFile string
	prompt  bool
	baseURL string
	timeout time.Duration
}

func (h *hubFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&h.envFile, "env", ".env", "env file holding "+config.KeyName)
	fs.BoolVar(&h.prompt, "prompt", false, "ask for the hub key on stdin when it is not configured")
	fs.StringVar(&h.baseURL, "hub-url", hub.DefaultBaseURL, "Earth Data Hub base URL")
	fs.DurationVar(&h.timeout, "timeout", 10*time.Minute, "timeout of a single download")
}

func (h *hubFlags) client(logger *slog.Logger) (*hub.Client, error) {
	cfg, err := config.Load(h.envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		if !h.prompt || !errors.Is(err, config.ErrMissingKey) {
			return nil, err
		}
		if cfg.HubKey, err = config.PromptKey(os.Stdin, os.Stderr); err != nil {
			return nil, err
		}
	}
	return hub.NewClient(logger, h.baseURL, cfg.HubKey, hub.WithTimeout(h.timeout))
}

func runFetch(ctx context.Context, args []string) error {
	var (
		c        common
		h        hubFlags
		dir      string
		redisURL string
		dsn      string
	)
	fs := newFlagSet("fetch")
	c.register(fs)
	h.register(fs)
	fs.StringVar(&dir, "dir", "data", "directory to download into")
	fs.StringVar(&redisURL, "redis-url", "", "redis server shared as fetch index, e.g. redis://localhost:6379/0")
	fs.StringVar(&dsn, "catalog", defaultCatalog, "catalog database used as fetch index when -redis-url is empty. Empty disables the index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no hub paths given")
	}
	c.stdoutData = true
	logger := c.logger()

	cli, err := h.client(logger)
	if err != nil {
		return err
	}
	var idx index.Index
	switch {
	case redisURL != "":
		r, err := index.NewRedis(redisURL, index.DefaultTTL)
		if err != nil {
			return err
		}
		defer r.Close()
		idx = r
	case dsn != "":
		cat, err := catalog.Open(dsn)
		if err != nil {
			return err
		}
		defer cat.Close()
		idx = index.NewCatalog(cat)
	}

	f := hub.NewFetcher(logger, cli, idx, dir)
	start := time.Now()
	var fetched, reused int
	for _, p := range fs.Args() {
		local, ok, err := f.Get(ctx, p)
		if err != nil {
			return err
		}
		if ok {
			fetched++
		} else {
			reused++
		}
		fmt.Println(local)
	}
	logger.Info("Fetch finished", "fetched", fetched, "reused", reused, "in", time.Since(start).Round(time.Millisecond))
	return nil
}

func runList(ctx context.Context, args []string) error {
	var (
		c common
		h hubFlags
	)
	fs := newFlagSet("list")
	c.register(fs)
	h.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one hub directory")
	}
	c.stdoutData = true
	logger := c.logger()

	cli, err := h.client(logger)
	if err != nil {
		return err
	}
	files, err := cli.List(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	logger.Debug("Listed", "dir", fs.Arg(0), "files", len(files))
	return nil
}
