package page

import (
	"path/filepath"
	"testing"

	"github.com/enessayaci/heybe/internal/domain"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("missing file must load empty, got %+v", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	in := domain.StorageRecord{
		Token: "tok-1",
		User:  &domain.UserProfile{ID: "u-1", Email: "u@example.com", Guest: true},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if out.Token != "tok-1" || out.User == nil || out.User.ID != "u-1" || !out.User.Guest {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestFileStoreClearIsIdempotent(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	if err := store.Save(domain.StorageRecord{Token: "tok"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear must succeed: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("cleared store must be empty, got %+v", got)
	}
}
