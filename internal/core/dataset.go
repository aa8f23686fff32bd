package core

import (
	"time"
)

// Dataset is an immutable snapshot of the unified transactions.
// It is safe for concurrent reads; nothing mutates it after NewDataset returns.
type Dataset struct {
	version  int64
	loadedAt time.Time
	txs      []Transaction
	projects []string
	minDate  Date
	maxDate  Date
}

// NewDataset copies txs into a new snapshot and indexes projects and date bounds.
func NewDataset(version int64, loadedAt time.Time, txs []Transaction) *Dataset {
	ds := &Dataset{
		version:  version,
		loadedAt: loadedAt,
		txs:      append([]Transaction(nil), txs...),
	}
	seen := make(map[string]struct{})
	for i, tx := range ds.txs {
		if _, ok := seen[tx.ProjectID]; !ok {
			seen[tx.ProjectID] = struct{}{}
			ds.projects = append(ds.projects, tx.ProjectID)
		}
		if i == 0 || tx.Date.Before(ds.minDate) {
			ds.minDate = tx.Date
		}
		if i == 0 || tx.Date.After(ds.maxDate) {
			ds.maxDate = tx.Date
		}
	}
	return ds
}

// Version identifies the snapshot; refreshes produce increasing versions.
func (d *Dataset) Version() int64 { return d.version }

func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

func (d *Dataset) Len() int { return len(d.txs) }

// Transactions returns a copy of the unified transactions in load order.
func (d *Dataset) Transactions() []Transaction {
	return append([]Transaction(nil), d.txs...)
}

// Projects returns distinct project ids in first-seen order.
func (d *Dataset) Projects() []string {
	return append([]string(nil), d.projects...)
}

// Bounds returns the earliest and latest transaction dates.
// ok is false for an empty dataset.
func (d *Dataset) Bounds() (first, last Date, ok bool) {
	return d.minDate, d.maxDate, len(d.txs) > 0
}

// Equal reports whether both datasets hold the same transactions in the same order.
// Version and load time are ignored.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.txs) != len(o.txs) {
		return false
	}
	for i := range d.txs {
		a, b := d.txs[i], o.txs[i]
		if a.ProjectID != b.ProjectID || a.Category != b.Category || !a.Date.Equal(b.Date) || !a.Cost.Equal(b.Cost) {
			return false
		}
	}
	return true
}

// DefaultFilter mirrors the dashboard's initial state: the first project and the
// full date range of the data.
func (d *Dataset) DefaultFilter() Filter {
	f := Filter{Start: d.minDate, End: d.maxDate}
	if len(d.projects) > 0 {
		f.ProjectID = d.projects[0]
	}
	return f
}

// Resolve parses raw filter inputs, filling empty values from DefaultFilter.
func (d *Dataset) Resolve(project, start, end string) (Filter, error) {
	def := d.DefaultFilter()
	if project == "" {
		project = def.ProjectID
	}
	if start == "" {
		start = def.Start.String()
	}
	if end == "" {
		end = def.End.String()
	}
	return ParseFilter(project, start, end)
}
