// Package snapshot owns the in-memory cost dataset shared by all requests.
//
// Readers take the current snapshot with Current and keep using it for the
// whole request. Refresh builds a complete new dataset and swaps it in with a
// single atomic store, so a reader never observes a partially loaded dataset.
package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

// Loader reads the unified transactions from the store.
type Loader interface {
	ReadTransactions(ctx context.Context) ([]core.Transaction, error)
}

// Holder publishes immutable dataset snapshots.
type Holder struct {
	loader  Loader
	logger  *applog.Logger
	current atomic.Pointer[core.Dataset]

	// mu serializes refreshes; readers never take it.
	mu      sync.Mutex
	version int64

	lastErr   atomic.Pointer[refreshError]
	onPublish []func(*core.Dataset)
}

type refreshError struct {
	err error
	at  time.Time
}

// Option configures a Holder.
type Option func(*Holder)

// WithLogger sets the logger used for refresh events.
func WithLogger(l *applog.Logger) Option {
	return func(h *Holder) { h.logger = l.WithComponent(applog.ComponentSnapshot) }
}

// OnPublish registers fn to run after each successful refresh, while the
// refresh lock is still held.
func OnPublish(fn func(*core.Dataset)) Option {
	return func(h *Holder) { h.onPublish = append(h.onPublish, fn) }
}

// NewHolder creates an empty holder. Call Refresh to load the first snapshot.
func NewHolder(loader Loader, opts ...Option) *Holder {
	h := &Holder{loader: loader}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentSnapshot)
	}
	return h
}

// Current returns the live snapshot, or nil before the first successful load.
func (h *Holder) Current() *core.Dataset {
	return h.current.Load()
}

// Ready reports whether a snapshot has been loaded.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// LastFailure returns the most recent refresh failure since the last success.
func (h *Holder) LastFailure() (time.Time, error) {
	if e := h.lastErr.Load(); e != nil {
		return e.at, e.err
	}
	return time.Time{}, nil
}

// Refresh loads a new dataset and publishes it. On failure the previous
// snapshot stays live and the error is returned.
func (h *Holder) Refresh(ctx context.Context, reason string) (*core.Dataset, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	txs, err := h.loader.ReadTransactions(ctx)
	if err != nil {
		h.lastErr.Store(&refreshError{err: err, at: time.Now()})
		fields := applog.NewFields().
			WithOperation(applog.OpRefresh).
			WithError(err)
		fields[applog.FieldReason] = reason
		fields[applog.FieldVersion] = h.version
		h.logger.ErrorContext(ctx, "Snapshot refresh failed, keeping previous snapshot", fields.ToSlice()...)
		return nil, err
	}

	h.version++
	ds := core.NewDataset(h.version, time.Now(), txs)
	h.current.Store(ds)
	h.lastErr.Store(nil)
	for _, fn := range h.onPublish {
		fn(ds)
	}

	h.logger.InfoContext(ctx, "Snapshot refreshed",
		applog.FieldOperation, applog.OpRefresh,
		applog.FieldReason, reason,
		applog.FieldVersion, ds.Version(),
		applog.FieldRows, ds.Len(),
		applog.FieldProjects, len(ds.Projects()),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return ds, nil
}

// RunTicker refreshes every interval until ctx is done. Failures are logged and
// do not stop the loop.
func (h *Holder) RunTicker(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = h.Refresh(ctx, "interval")
		}
	}
}
