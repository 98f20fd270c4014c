package bridge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/enessayaci/heybe/internal/domain"
)

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.db")
	store, err := OpenStore(path, "test-storage-secret")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteStoreEmptyLoadsEmptyRecord(t *testing.T) {
	store, _ := openTestStore(t)

	record, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !record.Empty() {
		t.Fatalf("fresh store must be empty, got %+v", record)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	in := domain.StorageRecord{
		Token: "session-token-value",
		User:  &domain.UserProfile{ID: "u-1", Email: "u@example.com", Guest: true},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	out, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if out.Token != in.Token {
		t.Fatalf("token mismatch: %q", out.Token)
	}
	if out.User == nil || out.User.ID != "u-1" || !out.User.Guest {
		t.Fatalf("user mismatch: %+v", out.User)
	}
}

func TestSQLiteStoreTokenEncryptedAtRest(t *testing.T) {
	store, path := openTestStore(t)

	token := "very-recognizable-session-token"
	if err := store.Save(context.Background(), domain.StorageRecord{Token: token}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read db file: %v", err)
	}
	if bytes.Contains(raw, []byte(token)) {
		t.Fatal("plaintext token found in the database file")
	}
}

func TestSQLiteStoreClear(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, domain.StorageRecord{Token: "tok"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	record, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !record.Empty() {
		t.Fatalf("cleared store must be empty, got %+v", record)
	}
}
