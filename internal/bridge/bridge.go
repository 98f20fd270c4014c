// Package bridge models the extension-held storage and the asynchronous
// message channel a page uses to reach it. Every operation is an explicit
// request paired with exactly one point-to-point response; the bridge never
// reports its own failures over the channel, it collapses them to negative
// or empty results. A page that gets nothing back cannot tell "not installed"
// from "installed but broken", and does not need to.
package bridge

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/enessayaci/heybe/internal/domain"
)

// Op names a bridge operation, using the wire names of the page⇄extension
// message protocol.
type Op string

const (
	OpPing  Op = "ping"
	OpSave  Op = "saveStorageData"
	OpLoad  Op = "getStorageData"
	OpClear Op = "clearStorage"
)

// Request is one message from a page to the bridge.
type Request struct {
	Op     Op
	Record domain.StorageRecord

	// reply receives exactly one Response. It is buffered so a caller that
	// timed out and walked away never blocks the bridge.
	reply chan Response
}

// Response is the bridge's answer to a single request.
type Response struct {
	OK     bool
	Record domain.StorageRecord
}

const storeOpTimeout = 2 * time.Second

// Bridge serves storage requests from a single goroutine and fans
// identityUpdated pushes out to subscribed page contexts.
type Bridge struct {
	store  Store
	logger *slog.Logger

	requests    chan Request
	subscribeCh chan chan domain.StorageRecord
	unsubCh     chan chan domain.StorageRecord

	done     chan struct{}
	stopOnce sync.Once
}

// New starts a Bridge over the given store.
func New(store Store, logger *slog.Logger) *Bridge {
	b := &Bridge{
		store:       store,
		logger:      logger,
		requests:    make(chan Request),
		subscribeCh: make(chan chan domain.StorageRecord),
		unsubCh:     make(chan chan domain.StorageRecord),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// Stop shuts the bridge down. In-flight callers receive nothing further;
// their timeouts handle the rest.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe registers a page context for identityUpdated pushes. The
// returned channel is buffered; a subscriber that stops draining misses
// events instead of stalling the bridge.
func (b *Bridge) Subscribe() chan domain.StorageRecord {
	ch := make(chan domain.StorageRecord, 8)
	select {
	case b.subscribeCh <- ch:
	case <-b.done:
	}
	return ch
}

// Unsubscribe removes a previously subscribed channel.
func (b *Bridge) Unsubscribe(ch chan domain.StorageRecord) {
	select {
	case b.unsubCh <- ch:
	case <-b.done:
	}
}

func (b *Bridge) run() {
	subs := make(map[chan domain.StorageRecord]struct{})
	for {
		select {
		case req := <-b.requests:
			b.handle(req, subs)
		case ch := <-b.subscribeCh:
			subs[ch] = struct{}{}
		case ch := <-b.unsubCh:
			delete(subs, ch)
		case <-b.done:
			return
		}
	}
}

// handle services one request. The reply channel is buffered, so the send
// never blocks even when the caller already gave up.
func (b *Bridge) handle(req Request, subs map[chan domain.StorageRecord]struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	switch req.Op {
	case OpPing:
		req.reply <- Response{OK: true}

	case OpLoad:
		record, err := b.store.Load(ctx)
		if err != nil {
			b.logger.Warn("bridge load failed", "error", err)
			req.reply <- Response{}
			return
		}
		req.reply <- Response{OK: true, Record: record}

	case OpSave:
		current, err := b.store.Load(ctx)
		if err != nil {
			b.logger.Warn("bridge load before save failed", "error", err)
			req.reply <- Response{}
			return
		}
		merged := current.Merge(req.Record)
		if err := b.store.Save(ctx, merged); err != nil {
			b.logger.Warn("bridge save failed", "error", err)
			req.reply <- Response{}
			return
		}
		req.reply <- Response{OK: true}
		b.push(merged, subs)

	case OpClear:
		if err := b.store.Clear(ctx); err != nil {
			b.logger.Warn("bridge clear failed", "error", err)
			req.reply <- Response{}
			return
		}
		req.reply <- Response{OK: true}
		b.push(domain.StorageRecord{}, subs)

	default:
		req.reply <- Response{}
	}
}

// push fans an identityUpdated event out to subscribers, fire-and-forget.
func (b *Bridge) push(record domain.StorageRecord, subs map[chan domain.StorageRecord]struct{}) {
	for ch := range subs {
		select {
		case ch <- record:
		default:
		}
	}
}
