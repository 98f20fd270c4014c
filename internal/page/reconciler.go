package page

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/enessayaci/heybe/internal/domain"
)

// BridgeConn is the page's view of the extension storage. Every call reports
// only success or failure; unavailability and breakage look identical.
type BridgeConn interface {
	Pinger
	Save(ctx context.Context, record domain.StorageRecord) bool
	Load(ctx context.Context) (domain.StorageRecord, bool)
	Clear(ctx context.Context) bool
}

const defaultCallTimeout = time.Second

// Reconciler keeps the page's persisted identity in agreement with the
// bridge. It is the sole mutator of page-local state. The bridge, when
// reachable, is the system of record: it is the longer-lived store, so its
// contents overwrite the page's own copy. Conflicts resolve as last write
// wins; the two contexts are driven serially by one human, not by
// independent agents.
type Reconciler struct {
	conn   BridgeConn
	local  LocalStore
	probe  *Probe
	logger *slog.Logger

	// CallTimeout bounds each bridge call made outside the probe.
	CallTimeout time.Duration

	mu      sync.Mutex
	current domain.StorageRecord
}

// NewReconciler builds a Reconciler over an injected local store and bridge
// connection, and seeds its in-memory state from the local store. This runs
// on page load, before anything renders.
func NewReconciler(conn BridgeConn, local LocalStore, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		conn:        conn,
		local:       local,
		probe:       NewProbe(conn, logger),
		logger:      logger,
		CallTimeout: defaultCallTimeout,
	}
	record, err := local.Load()
	if err != nil {
		logger.Warn("local state unreadable, starting empty", "error", err)
		record = domain.StorageRecord{}
	}
	r.current = record
	return r
}

// Probe exposes the availability probe, mainly so callers can tune its
// timing or read its state.
func (r *Reconciler) Probe() *Probe {
	return r.probe
}

// Current returns the page's present view of the session identity.
func (r *Reconciler) Current() domain.StorageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Sync runs the availability probe and, when the bridge is reachable, folds
// its state into page-local storage. A bridge holding any identity at all
// overwrites the local copy unconditionally. Returns the probe's terminal
// state.
func (r *Reconciler) Sync(ctx context.Context) ProbeState {
	state := r.probe.Run(ctx)
	if state != StateAvailable {
		return state
	}
	callCtx, cancel := context.WithTimeout(ctx, r.CallTimeout)
	defer cancel()
	record, ok := r.conn.Load(callCtx)
	if !ok {
		r.logger.Warn("bridge available but load failed, keeping local state")
		return state
	}
	if record.Empty() {
		return state
	}
	r.write(record)
	r.logger.Info("reconciled from bridge", "has_token", record.Token != "", "has_user", record.User != nil)
	return state
}

// ApplyUpdate handles a pushed identityUpdated event: the new pair replaces
// local state immediately, whatever the probe concluded.
func (r *Reconciler) ApplyUpdate(record domain.StorageRecord) {
	r.write(record)
}

// Listen applies pushed identity updates until ctx ends or events closes.
func (r *Reconciler) Listen(ctx context.Context, events <-chan domain.StorageRecord) {
	for {
		select {
		case record, ok := <-events:
			if !ok {
				return
			}
			r.ApplyUpdate(record)
		case <-ctx.Done():
			return
		}
	}
}

// Store records a locally observed identity (a login or registration made by
// this page) and propagates it to the bridge best-effort.
func (r *Reconciler) Store(ctx context.Context, record domain.StorageRecord) {
	r.write(record)
	callCtx, cancel := context.WithTimeout(ctx, r.CallTimeout)
	defer cancel()
	if !r.conn.Save(callCtx, record) {
		r.logger.Warn("bridge save skipped or failed")
	}
}

// Logout clears page-local state first, which always succeeds locally, then
// attempts to clear the bridge. A failed or timed-out bridge clear does not
// roll the local clear back.
func (r *Reconciler) Logout(ctx context.Context) {
	r.mu.Lock()
	r.current = domain.StorageRecord{}
	r.mu.Unlock()
	if err := r.local.Clear(); err != nil {
		r.logger.Warn("local clear failed", "error", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.CallTimeout)
	defer cancel()
	if !r.conn.Clear(callCtx) {
		r.logger.Warn("bridge clear skipped or failed")
	}
}

// write replaces in-memory and persisted local state. A failed persist is
// logged and the in-memory copy kept; the page stays usable.
func (r *Reconciler) write(record domain.StorageRecord) {
	r.mu.Lock()
	r.current = record
	r.mu.Unlock()
	if err := r.local.Save(record); err != nil {
		r.logger.Warn("local state persist failed", "error", err)
	}
}
