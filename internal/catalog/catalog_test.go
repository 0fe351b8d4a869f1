package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func open(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetches(t *testing.T) {
	ctx := context.Background()
	c := open(t)

	if _, ok, err := c.LookupFetch(ctx, "era5/2024-01.nc"); err != nil || ok {
		t.Fatalf("expected no fetch, got ok=%v err=%v", ok, err)
	}
	if err := c.RecordFetch(ctx, "era5/2024-01.nc", "https://hub/era5/2024-01.nc", "/tmp/a.nc", 10); err != nil {
		t.Fatalf("RecordFetch failed: %s", err)
	}
	if err := c.RecordFetch(ctx, "era5/2024-01.nc", "https://hub/era5/2024-01.nc", "/tmp/b.nc", 20); err != nil {
		t.Fatalf("RecordFetch failed: %s", err)
	}
	f, ok, err := c.LookupFetch(ctx, "era5/2024-01.nc")
	if err != nil || !ok || f.Path != "/tmp/b.nc" {
		t.Fatalf("unexpected fetch %+v ok=%v err=%v", f, ok, err)
	}
	if f.Size != 20 || f.URL != "https://hub/era5/2024-01.nc" {
		t.Fatalf("unexpected fetch %+v", f)
	}
}

func TestRenders(t *testing.T) {
	ctx := context.Background()
	c := open(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := c.RecordRender(ctx, Render{Kind: "plot", Source: "a.nc", Region: "35,60,-15,30", Path: "wind.png"})
	if err != nil {
		t.Fatalf("RecordRender failed: %s", err)
	}
	if first.ID == "" || first.CreatedAt != "2024-05-01T12:01:00Z" {
		t.Fatalf("unexpected render %+v", first)
	}
	second, err := c.RecordRender(ctx, Render{Kind: "animation", Source: "a.nc", Path: "wind.gif", Location: "s3://bucket/wind.gif"})
	if err != nil {
		t.Fatalf("RecordRender failed: %s", err)
	}

	list, err := c.ListRenders(ctx, 10)
	if err != nil {
		t.Fatalf("ListRenders failed: %s", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[0].Location != "s3://bucket/wind.gif" {
		t.Fatalf("unexpected location %q", list[0].Location)
	}

	list, err = c.ListRenders(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected a single render, got %d err=%v", len(list), err)
	}
}
