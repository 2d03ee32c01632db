package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jxoesneon/hermesbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q): expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "deliveries.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	entries := []DeliveryEntry{
		{At: now.Add(-2 * time.Minute), SubscriberID: "U1", ChatID: 11, Kind: "shift", OK: true, TookMS: 40},
		{At: now.Add(-1 * time.Minute), SubscriberID: "U2", ChatID: 22, Kind: "fallback", OK: false, Error: "blocked by user"},
		{At: now, SubscriberID: "U1", ChatID: 11, Kind: "broadcast", OK: true},
	}
	for _, e := range entries {
		if err := st.AppendDelivery(ctx, e); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}

	got, err := st.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// Newest first.
	if got[0].Kind != "broadcast" || got[2].Kind != "shift" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Error != "blocked by user" || got[1].OK {
		t.Fatalf("failure entry not preserved: %+v", got[1])
	}
}

func TestFileStoreRecentLimit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "deliveries.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		e := DeliveryEntry{At: time.Now(), SubscriberID: "U1", ChatID: 1, Kind: "shift", OK: true, TookMS: int64(i)}
		if err := st.AppendDelivery(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := st.RecentDeliveries(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	if got[0].TookMS != 19 {
		t.Fatalf("expected newest entry first, got TookMS=%d", got[0].TookMS)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "deliveries.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.AppendDelivery(ctx, DeliveryEntry{SubscriberID: "U1", ChatID: 5, Kind: "shift", OK: true, TookMS: 12}); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
	if err := st.AppendDelivery(ctx, DeliveryEntry{SubscriberID: "U2", ChatID: 6, Kind: "shift", OK: false, Error: "timeout"}); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}

	got, err := st.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].SubscriberID != "U2" || got[0].Error != "timeout" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].SubscriberID != "U1" || !got[1].OK || got[1].TookMS != 12 {
		t.Fatalf("unexpected oldest entry: %+v", got[1])
	}
	if got[1].At.IsZero() {
		t.Fatal("At not defaulted on insert")
	}
}
