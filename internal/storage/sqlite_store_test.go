package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"rainfall-dashboard/internal/rainfall"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return newSQLiteStore(t) })
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestInitIsRepeatable(t *testing.T) {
	store := newSQLiteStore(t)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("second init: %v", err)
	}
}

// runStoreTests exercises the Store contract against any backend.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	t.Run("empty analytics are zero", func(t *testing.T) {
		store := open(t)
		summary, err := store.Analytics(context.Background())
		if err != nil {
			t.Fatalf("analytics: %v", err)
		}
		if summary != (rainfall.Summary{}) {
			t.Fatalf("summary: got %+v", summary)
		}
		records, err := store.ListRecords(context.Background())
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Fatalf("records: got %#v", records)
		}
	})

	t.Run("records are ordered by year and aggregated", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		for _, input := range []rainfall.Input{{Year: 2021, Amount: 900}, {Year: 2019, Amount: 1200}, {Year: 2020, Amount: 300}} {
			if _, err := store.CreateRecord(ctx, input); err != nil {
				t.Fatalf("create %d: %v", input.Year, err)
			}
		}
		records, err := store.ListRecords(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(records) != 3 || records[0].Year != 2019 || records[2].Year != 2021 {
			t.Fatalf("records: got %+v", records)
		}
		summary, err := store.Analytics(ctx)
		if err != nil {
			t.Fatalf("analytics: %v", err)
		}
		want := rainfall.Summary{Total: 2400, Average: 800, Highest: 1200, Lowest: 300}
		if summary != want {
			t.Fatalf("summary: got %+v want %+v", summary, want)
		}
	})

	t.Run("duplicate year is rejected", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		first, err := store.CreateRecord(ctx, rainfall.Input{Year: 2020, Amount: 1})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := store.CreateRecord(ctx, rainfall.Input{Year: 2020, Amount: 2}); !errors.Is(err, ErrDuplicateYear) {
			t.Fatalf("expected duplicate year, got %v", err)
		}
		second, err := store.CreateRecord(ctx, rainfall.Input{Year: 2021, Amount: 2})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := store.UpdateRecord(ctx, second.ID, rainfall.Input{Year: first.Year, Amount: 3}); !errors.Is(err, ErrDuplicateYear) {
			t.Fatalf("expected duplicate year on update, got %v", err)
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		record, err := store.CreateRecord(ctx, rainfall.Input{Year: 2020, Amount: 100})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if !record.ID.Valid() {
			t.Fatalf("id should be assigned, got %d", record.ID)
		}
		updated, err := store.UpdateRecord(ctx, record.ID, rainfall.Input{Year: 2020, Amount: 150})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Amount != 150 || updated.ID != record.ID {
			t.Fatalf("updated: got %+v", updated)
		}
		if _, err := store.UpdateRecord(ctx, record.ID+100, rainfall.Input{Year: 1999, Amount: 1}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := store.DeleteRecord(ctx, record.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := store.DeleteRecord(ctx, record.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
	})

	t.Run("users", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		created, err := store.CreateUser(ctx, User{Username: "alice", PasswordHash: "hash", Role: "admin"})
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if created.ID == 0 {
			t.Fatalf("user id should be assigned")
		}
		if _, err := store.CreateUser(ctx, User{Username: "alice", PasswordHash: "x", Role: "user"}); !errors.Is(err, ErrDuplicateUser) {
			t.Fatalf("expected duplicate user, got %v", err)
		}
		found, err := store.UserByName(ctx, "alice")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if found.Role != "admin" || found.PasswordHash != "hash" {
			t.Fatalf("user: got %+v", found)
		}
		if _, err := store.UserByName(ctx, "bob"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}
