// Package hub downloads datasets from the Earth Data Hub.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public Earth Data Hub endpoint.
const DefaultBaseURL = "https://data.earthdatahub.destine.eu"

// ErrUnauthorized is returned when the hub rejects the access key.
var ErrUnauthorized = errors.New("hub rejected the access key")

// Client talks to the hub with basic auth and retries transient failures.
type Client struct {
	logger   *slog.Logger
	httpCli  *http.Client
	baseURL  *url.URL
	user     string
	key      string
	retryMax int
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithUser overrides the basic auth user name, "edh" by default.
func WithUser(user string) Option {
	return func(c *Client) {
		c.user = user
	}
}

// WithRetryMax sets how many times a failed request is retried.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		c.retryMax = n
	}
}

// WithTimeout bounds a whole request including the body download.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a hub client for baseURL authenticating with key.
func NewClient(logger *slog.Logger, baseURL, key string, opts ...Option) (*Client, error) {
	if key == "" {
		return nil, errors.New("missing hub access key")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported hub url %q", baseURL)
	}
	c := &Client{
		logger:   logger,
		baseURL:  u,
		user:     "edh",
		key:      key,
		retryMax: 3,
		timeout:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	c.httpCli = rc.StandardClient()
	c.httpCli.Timeout = c.timeout
	return c, nil
}

// URL returns the absolute url of a hub path.
func (c *Client) URL(p string) string {
	u := *c.baseURL
	u.Path = path.Join("/", u.Path, p)
	return u.String()
}

func (c *Client) get(ctx context.Context, p, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.key)
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get %s: %w", p, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w (status %d)", p, ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unable to get %s: unexpected status %d: %s", p, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Fetch downloads the hub path p to dst and returns the number of bytes
// written. dst is replaced only after a complete download.
func (c *Client) Fetch(ctx context.Context, p, dst string) (int64, error) {
	resp, err := c.get(ctx, p, c.URL(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("unable to download %s: %w", p, err)
	}
	c.logger.Debug("downloaded", "path", p, "dst", dst, "bytes", n)
	return n, nil
}

// List returns the NetCDF files linked from the index page at p, as paths
// relative to the hub root, in page order.
func (c *Client) List(ctx context.Context, p string) ([]string, error) {
	page := *c.baseURL
	page.Path = strings.TrimSuffix(path.Join("/", page.Path, p), "/") + "/"
	resp, err := c.get(ctx, p, page.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse index %s: %w", p, err)
	}
	seen := make(map[string]bool)
	var files []string
	doc.Find("a[href]").Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Attr("href")
		ref, err := url.Parse(href)
		if err != nil || path.Ext(ref.Path) != ".nc" {
			return
		}
		abs := page.ResolveReference(ref)
		if abs.Host != c.baseURL.Host {
			return
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(abs.Path, c.baseURL.Path), "/")
		if !seen[rel] {
			seen[rel] = true
			files = append(files, rel)
		}
	})
	return files, nil
}
