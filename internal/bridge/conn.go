package bridge

import (
	"context"

	"github.com/enessayaci/heybe/internal/domain"
)

// Conn is a page context's handle to the bridge. A nil Conn (or a Conn over
// a nil bridge) behaves exactly like an absent extension: every call fails.
//
// Each call suspends the caller until the bridge answers or ctx expires.
// There is no abort primitive: a timed-out caller simply abandons the reply,
// which lands in the buffered channel and is collected.
type Conn struct {
	bridge *Bridge
}

// NewConn wraps a bridge for page-side use. bridge may be nil.
func NewConn(bridge *Bridge) *Conn {
	return &Conn{bridge: bridge}
}

// Ping reports whether the bridge answered within ctx's deadline.
func (c *Conn) Ping(ctx context.Context) bool {
	resp, ok := c.call(ctx, Request{Op: OpPing})
	return ok && resp.OK
}

// Save merges the non-empty halves of record into the bridge store.
func (c *Conn) Save(ctx context.Context, record domain.StorageRecord) bool {
	resp, ok := c.call(ctx, Request{Op: OpSave, Record: record})
	return ok && resp.OK
}

// Load fetches the stored record. The second result is false when the bridge
// is unreachable or failed; the caller must treat both the same way.
func (c *Conn) Load(ctx context.Context) (domain.StorageRecord, bool) {
	resp, ok := c.call(ctx, Request{Op: OpLoad})
	if !ok || !resp.OK {
		return domain.StorageRecord{}, false
	}
	return resp.Record, true
}

// Clear empties the bridge store.
func (c *Conn) Clear(ctx context.Context) bool {
	resp, ok := c.call(ctx, Request{Op: OpClear})
	return ok && resp.OK
}

func (c *Conn) call(ctx context.Context, req Request) (Response, bool) {
	if c == nil || c.bridge == nil {
		return Response{}, false
	}
	req.reply = make(chan Response, 1)
	select {
	case c.bridge.requests <- req:
	case <-c.bridge.done:
		return Response{}, false
	case <-ctx.Done():
		return Response{}, false
	}
	select {
	case resp := <-req.reply:
		return resp, true
	case <-c.bridge.done:
		return Response{}, false
	case <-ctx.Done():
		// Late responses are discarded, not waited for.
		return Response{}, false
	}
}
