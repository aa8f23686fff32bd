package snapshot

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

type fakeLoader struct {
	mu    sync.Mutex
	txs   []core.Transaction
	err   error
	calls int
}

func (f *fakeLoader) ReadTransactions(context.Context) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.Transaction(nil), f.txs...), nil
}

func (f *fakeLoader) set(txs []core.Transaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs, f.err = txs, err
}

func tx(project string, cost int64) core.Transaction {
	return core.Transaction{ProjectID: project, Date: core.NewDate(2024, 1, 1), Cost: decimal.NewFromInt(cost), Category: core.Materials}
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func TestHolderStartsEmpty(t *testing.T) {
	h := NewHolder(&fakeLoader{}, WithLogger(quietLogger()))
	assert.False(t, h.Ready())
	assert.Nil(t, h.Current())
}

func TestRefreshPublishesNewVersion(t *testing.T) {
	loader := &fakeLoader{txs: []core.Transaction{tx("A", 1)}}
	h := NewHolder(loader, WithLogger(quietLogger()))

	first, err := h.Refresh(context.Background(), "startup")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version())
	assert.Same(t, first, h.Current())

	loader.set([]core.Transaction{tx("A", 1), tx("B", 2)}, nil)
	second, err := h.Refresh(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version())
	assert.Equal(t, 2, h.Current().Len())

	// Readers holding the old snapshot still see the old data.
	assert.Equal(t, 1, first.Len())
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	loader := &fakeLoader{txs: []core.Transaction{tx("A", 1)}}
	h := NewHolder(loader, WithLogger(quietLogger()))
	live, err := h.Refresh(context.Background(), "startup")
	require.NoError(t, err)

	boom := errors.New("disk gone")
	loader.set(nil, boom)
	_, err = h.Refresh(context.Background(), "test")
	require.ErrorIs(t, err, boom)

	assert.Same(t, live, h.Current())
	at, lastErr := h.LastFailure()
	assert.ErrorIs(t, lastErr, boom)
	assert.False(t, at.IsZero())

	loader.set([]core.Transaction{tx("A", 1)}, nil)
	_, err = h.Refresh(context.Background(), "test")
	require.NoError(t, err)
	_, lastErr = h.LastFailure()
	assert.NoError(t, lastErr)
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	loader := &fakeLoader{txs: []core.Transaction{tx("A", 1), tx("A", 1)}}
	h := NewHolder(loader, WithLogger(quietLogger()))
	_, err := h.Refresh(context.Background(), "startup")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ds := h.Current()
				// Every published snapshot has all rows cost 1, so the total equals the row count.
				v := core.Summarize(ds, core.Filter{ProjectID: "A", Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 1)})
				assert.Equal(t, int64(ds.Len()), v.Totals.Total.IntPart())
			}
		}()
	}
	for i := 0; i < 20; i++ {
		rows := make([]core.Transaction, i+1)
		for k := range rows {
			rows[k] = tx("A", 1)
		}
		loader.set(rows, nil)
		_, err := h.Refresh(context.Background(), "test")
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int64(21), h.Current().Version())
}

func TestRunTickerStopsOnCancel(t *testing.T) {
	h := NewHolder(&fakeLoader{}, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.RunTicker(ctx, 1))
}

func TestOnPublishRunsAfterSuccessOnly(t *testing.T) {
	loader := &fakeLoader{txs: []core.Transaction{tx("A", 1)}}
	var published []int64
	h := NewHolder(loader, WithLogger(quietLogger()), OnPublish(func(ds *core.Dataset) {
		published = append(published, ds.Version())
	}))

	_, err := h.Refresh(context.Background(), "startup")
	require.NoError(t, err)
	loader.set(nil, errors.New("boom"))
	_, err = h.Refresh(context.Background(), "test")
	require.Error(t, err)

	assert.Equal(t, []int64{1}, published)
}
