package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/export"
	"github.com/rtm0/era5wind/internal/vm"
)

func runExport(ctx context.Context, args []string) error {
	var (
		c             common
		sel           selection
		format        string
		out           string
		prefix        string
		uVar, vVar    string
		vmInsertURL   string
		concurrency   int
		recsPerInsert int
	)
	fs := newFlagSet("export")
	c.register(fs)
	sel.register(fs)
	fs.StringVar(&format, "format", export.CSV, "output format, one of "+strings.Join(export.Formats(), ", "))
	fs.StringVar(&out, "o", "-", "output file, - for stdout")
	fs.StringVar(&prefix, "prefix", "wind", "measurement name in InfluxDB line protocol and metric prefix in Victoria Metrics")
	fs.StringVar(&uVar, "uvar", "u10", "eastward wind component")
	fs.StringVar(&vVar, "vvar", "v10", "northward wind component")
	fs.StringVar(&vmInsertURL, "vmInsertUrl", "", "Victoria Metrics insert API URL, e.g. http://localhost:8428/write. When set records are pushed instead of written")
	fs.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent requests to Victoria Metrics")
	fs.IntVar(&recsPerInsert, "recsPerInsert", 500, "number of records sent to VM in one batch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c.stdoutData = vmInsertURL == "" && out == "-"
	logger := c.logger()

	if vmInsertURL != "" {
		if concurrency < 1 || recsPerInsert < 1 {
			return errors.New("-concurrency and -recsPerInsert must be positive")
		}
		vmCli, err := vm.NewClient(logger, vmInsertURL, concurrency, prefix)
		if err != nil {
			return fmt.Errorf("could not create new VM client: %w", err)
		}
		d, err := sel.load(ctx, logger, nil)
		if err != nil {
			return err
		}
		return push(ctx, logger, vmCli, d, uVar, vVar, concurrency, recsPerInsert)
	}

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	ew, err := export.NewWriter(w, format, prefix)
	if err != nil {
		return err
	}
	d, err := sel.load(ctx, logger, nil)
	if err != nil {
		return err
	}
	n, err := ew.WriteDataset(d, uVar, vVar)
	if err != nil {
		return err
	}
	if f, ok := w.(*os.File); ok && f != os.Stdout {
		if err := f.Sync(); err != nil {
			return err
		}
	}
	logger.Info("Export finished", "format", format, "records", n, "output", out)
	return nil
}

type inserter interface {
	Insert(ctx context.Context, recs []era5.Record) error
}

// push inserts every timestep of d on a pool of workers, each sending batches
// of at most recsPerInsert records.
func push(ctx context.Context, logger *slog.Logger, cli inserter, d *era5.Dataset, uVar, vVar string, concurrency, recsPerInsert int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recsCh := make(chan []era5.Record)
	progressCh := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recs := range recsCh {
				n := len(recs)
				for i := 0; i < n && ctx.Err() == nil; i += recsPerInsert {
					begin := i
					limit := min(begin+recsPerInsert, n)
					if err := cli.Insert(ctx, recs[begin:limit]); err != nil {
						errOnce.Do(func() {
							firstErr = err
							cancel()
						})
					}
				}
				progressCh <- n
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		var inserted, total float64
		total = float64(len(d.Times) * len(d.Lat) * len(d.Lon))
		start := time.Now()
		for n := range progressCh {
			inserted += float64(n)
			percent := fmt.Sprintf("%.2f%%", 100*inserted/total)
			duration := time.Since(start).Round(1 * time.Second)
			logger.Info("progress", "inserted", percent, "in", duration)
		}
		close(done)
	}()

	var recErr error
send:
	for t := range d.Times {
		recs, err := d.Records(t, uVar, vVar)
		if err != nil {
			recErr = err
			break
		}
		select {
		case recsCh <- recs:
		case <-ctx.Done():
			break send
		}
	}
	close(recsCh)
	wg.Wait()
	close(progressCh)
	<-done

	switch {
	case recErr != nil:
		return recErr
	case firstErr != nil:
		return firstErr
	default:
		return ctx.Err()
	}
}
