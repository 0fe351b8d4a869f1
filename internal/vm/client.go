package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/export"
)

// Client is a Victoria Metrics client capable of inserting wind records via
// various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	recToText    export.RecToTextFunc
}

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	if err := export.ValidateMetricPrefix(metricPrefix); err != nil {
		return nil, err
	}

	apiParams := apiParamsFuncs[url.Path]
	if apiParams == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	q := url.Query()
	for name, value := range apiParams(metricPrefix) {
		q.Add(name, value)
	}
	url.RawQuery = q.Encode()

	recToText := recToTextFuncs[url.Path]
	if recToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.HTTPClient = &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        maxConns,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
		},
	}

	return &Client{
		logger:       logger,
		httpCli:      rc.StandardClient(),
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		recToText:    recToText,
	}, nil
}

// Insert inserts wind records into Victoria Metrics.
func (c *Client) Insert(ctx context.Context, recs []era5.Record) error {
	body := export.RecsToText(recs, c.metricPrefix, c.recToText)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("could not post data: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, c.insertURL)
	}
	return nil
}

type apiParamsFunc func(string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(metricPrefix string) map[string]string {
	return nil
}

func csvAPIParams(metricPrefix string) map[string]string {
	return map[string]string{
		"format": fmt.Sprintf(""+
			"1:time:unix_ms,"+
			"2:label:la,"+
			"3:label:lo,"+
			"4:metric:%[1]s_u,"+
			"5:metric:%[1]s_v,"+
			"6:metric:%[1]s_ws,"+
			"7:metric:%[1]s_wd", metricPrefix),
	}
}

var recToTextFuncs = map[string]export.RecToTextFunc{
	"/influx/write":        export.RecToInfluxDB,
	"/influx/api/v2/write": export.RecToInfluxDB,
	"/write":               export.RecToInfluxDB,
	"/api/v2/write":        export.RecToInfluxDB,
	"/api/v1/import/csv":   export.RecToCSV,
}
