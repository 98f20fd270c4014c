package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/enessayaci/heybe/internal/domain"
)

// memStore is an in-process Store for tests.
type memStore struct {
	mu     sync.Mutex
	record domain.StorageRecord

	failLoad  bool
	failSave  bool
	failClear bool
}

func (m *memStore) Load(ctx context.Context) (domain.StorageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return domain.StorageRecord{}, errors.New("load failed")
	}
	return m.record, nil
}

func (m *memStore) Save(ctx context.Context, record domain.StorageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("save failed")
	}
	m.record = record
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClear {
		return errors.New("clear failed")
	}
	m.record = domain.StorageRecord{}
	return nil
}

func (m *memStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func profile(id string) *domain.UserProfile {
	return &domain.UserProfile{ID: id, Email: id + "@example.com"}
}

func TestConnPingAnswersWhileBridgeRuns(t *testing.T) {
	b := New(&memStore{}, testLogger())
	defer b.Stop()

	conn := NewConn(b)
	if !conn.Ping(context.Background()) {
		t.Fatal("expected ping to succeed")
	}
}

func TestNilConnBehavesLikeAbsentExtension(t *testing.T) {
	var conn *Conn
	ctx := context.Background()

	if conn.Ping(ctx) {
		t.Fatal("nil conn must not answer pings")
	}
	if _, ok := conn.Load(ctx); ok {
		t.Fatal("nil conn must not load")
	}
	if conn.Save(ctx, domain.StorageRecord{Token: "tok"}) {
		t.Fatal("nil conn must not save")
	}
	if conn.Clear(ctx) {
		t.Fatal("nil conn must not clear")
	}
}

func TestStoppedBridgeRefusesCalls(t *testing.T) {
	b := New(&memStore{}, testLogger())
	b.Stop()

	conn := NewConn(b)
	if conn.Ping(context.Background()) {
		t.Fatal("stopped bridge must not answer")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	b := New(&memStore{}, testLogger())
	defer b.Stop()
	conn := NewConn(b)
	ctx := context.Background()

	if !conn.Save(ctx, domain.StorageRecord{Token: "tok-1", User: profile("u-1")}) {
		t.Fatal("save failed")
	}
	got, ok := conn.Load(ctx)
	if !ok {
		t.Fatal("load failed")
	}
	if got.Token != "tok-1" || got.User == nil || got.User.ID != "u-1" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestPartialSaveMergesWithStoredRecord(t *testing.T) {
	b := New(&memStore{}, testLogger())
	defer b.Stop()
	conn := NewConn(b)
	ctx := context.Background()

	if !conn.Save(ctx, domain.StorageRecord{Token: "tok-1", User: profile("u-1")}) {
		t.Fatal("initial save failed")
	}
	// A token-only save must keep the stored user.
	if !conn.Save(ctx, domain.StorageRecord{Token: "tok-2"}) {
		t.Fatal("partial save failed")
	}
	got, ok := conn.Load(ctx)
	if !ok {
		t.Fatal("load failed")
	}
	if got.Token != "tok-2" || got.User == nil || got.User.ID != "u-1" {
		t.Fatalf("partial save dropped a half: %+v", got)
	}
}

func TestClearEmptiesStoreAndNotifiesSubscribers(t *testing.T) {
	b := New(&memStore{record: domain.StorageRecord{Token: "tok-1", User: profile("u-1")}}, testLogger())
	defer b.Stop()
	conn := NewConn(b)
	ctx := context.Background()

	events := b.Subscribe()
	defer b.Unsubscribe(events)

	if !conn.Clear(ctx) {
		t.Fatal("clear failed")
	}
	got, ok := conn.Load(ctx)
	if !ok || !got.Empty() {
		t.Fatalf("store not emptied: ok=%v record=%+v", ok, got)
	}

	select {
	case pushed := <-events:
		if !pushed.Empty() {
			t.Fatalf("clear must push an empty record, got %+v", pushed)
		}
	case <-time.After(time.Second):
		t.Fatal("no push after clear")
	}
}

func TestSavePushesMergedRecordToSubscribers(t *testing.T) {
	b := New(&memStore{record: domain.StorageRecord{User: profile("u-1")}}, testLogger())
	defer b.Stop()
	conn := NewConn(b)

	events := b.Subscribe()
	defer b.Unsubscribe(events)

	if !conn.Save(context.Background(), domain.StorageRecord{Token: "tok-9"}) {
		t.Fatal("save failed")
	}
	select {
	case pushed := <-events:
		if pushed.Token != "tok-9" || pushed.User == nil || pushed.User.ID != "u-1" {
			t.Fatalf("unexpected pushed record: %+v", pushed)
		}
	case <-time.After(time.Second):
		t.Fatal("no push after save")
	}
}

func TestStoreFailuresCollapseToNegativeResults(t *testing.T) {
	store := &memStore{failLoad: true, failSave: true, failClear: true}
	b := New(store, testLogger())
	defer b.Stop()
	conn := NewConn(b)
	ctx := context.Background()

	// Ping still answers: availability is about the channel, not the store.
	if !conn.Ping(ctx) {
		t.Fatal("ping must succeed even with a broken store")
	}
	if _, ok := conn.Load(ctx); ok {
		t.Fatal("load over a broken store must fail")
	}
	if conn.Save(ctx, domain.StorageRecord{Token: "tok"}) {
		t.Fatal("save over a broken store must fail")
	}
	if conn.Clear(ctx) {
		t.Fatal("clear over a broken store must fail")
	}
}

func TestConcurrentCallersEachGetTheirOwnReply(t *testing.T) {
	b := New(&memStore{record: domain.StorageRecord{Token: "tok-1"}}, testLogger())
	defer b.Stop()

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewConn(b)
			got, ok := conn.Load(context.Background())
			if !ok || got.Token != "tok-1" {
				errs <- errors.New("caller received wrong reply")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestExpiredCallerDoesNotBlockBridge(t *testing.T) {
	b := New(&memStore{}, testLogger())
	defer b.Stop()
	conn := NewConn(b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn.Ping(ctx)

	// The bridge must still serve the next caller even if the previous one
	// walked away from its reply.
	if !conn.Ping(context.Background()) {
		t.Fatal("bridge stalled after an abandoned call")
	}
}
