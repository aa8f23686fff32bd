package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

// Relations and the columns each must expose.
var (
	materialColumns = []string{"project_id", "date", "cost"}
	laborColumns    = []string{"project_id", "date", "hours_worked", "hourly_rate"}
	overheadColumns = []string{"project_id", "date", "cost"}
)

// Load reads all three relations and returns the unified dataset.
// Version is left at zero; the snapshot holder assigns versions.
func (s *Store) Load(ctx context.Context) (*core.Dataset, error) {
	txs, err := s.ReadTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewDataset(0, time.Now(), txs), nil
}

// ReadTransactions reads materials, labor and overhead and unifies them.
func (s *Store) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	start := time.Now()

	materials, err := s.ReadMaterials(ctx)
	if err != nil {
		return nil, err
	}
	labor, err := s.ReadLabor(ctx)
	if err != nil {
		return nil, err
	}
	overhead, err := s.ReadOverhead(ctx)
	if err != nil {
		return nil, err
	}

	txs := core.Unify(materials, labor, overhead)
	s.logger.DebugContext(ctx, "Cost relations loaded",
		applog.FieldDriver, s.driver,
		"materials", len(materials),
		"labor", len(labor),
		"overhead", len(overhead),
		"duration_ms", time.Since(start).Milliseconds())
	return txs, nil
}

func (s *Store) ReadMaterials(ctx context.Context) ([]core.MaterialEntry, error) {
	var out []core.MaterialEntry
	err := s.scanRelation(ctx, "materials", materialColumns, func(r *record) error {
		pid, date, cost, err := r.costRow()
		if err != nil {
			return err
		}
		out = append(out, core.MaterialEntry{ProjectID: pid, Date: date, Cost: cost})
		return nil
	})
	return out, err
}

func (s *Store) ReadLabor(ctx context.Context) ([]core.LaborEntry, error) {
	var out []core.LaborEntry
	err := s.scanRelation(ctx, "labor", laborColumns, func(r *record) error {
		pid, err := r.str("project_id")
		if err != nil {
			return err
		}
		date, err := r.date("date")
		if err != nil {
			return err
		}
		hours, err := r.number("hours_worked")
		if err != nil {
			return err
		}
		rate, err := r.number("hourly_rate")
		if err != nil {
			return err
		}
		out = append(out, core.LaborEntry{ProjectID: pid, Date: date, HoursWorked: hours, HourlyRate: rate})
		return nil
	})
	return out, err
}

func (s *Store) ReadOverhead(ctx context.Context) ([]core.OverheadEntry, error) {
	var out []core.OverheadEntry
	err := s.scanRelation(ctx, "overhead", overheadColumns, func(r *record) error {
		pid, date, cost, err := r.costRow()
		if err != nil {
			return err
		}
		out = append(out, core.OverheadEntry{ProjectID: pid, Date: date, Cost: cost})
		return nil
	})
	return out, err
}

// scanRelation runs SELECT * on relation, checks that every required column is
// present and hands each row to fn.
func (s *Store) scanRelation(ctx context.Context, relation string, required []string, fn func(*record) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+relation)
	if err != nil {
		return classifyQueryError(relation, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("%w: relation %s columns: %v", core.ErrStoreUnavailable, relation, err)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[strings.ToLower(c)] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("%w: relation %s has no column %q (found %s)",
				core.ErrSchemaMismatch, relation, name, strings.Join(cols, ", "))
		}
	}

	r := &record{relation: relation, index: index, values: make([]any, len(cols))}
	ptrs := make([]any, len(cols))
	for i := range r.values {
		ptrs[i] = &r.values[i]
	}
	for rows.Next() {
		r.row++
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("%w: relation %s row %d: %v", core.ErrStoreUnavailable, relation, r.row, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: relation %s: %v", core.ErrStoreUnavailable, relation, err)
	}
	return nil
}

// record is the current row of a relation scan, addressed by column name.
type record struct {
	relation string
	row      int
	index    map[string]int
	values   []any
}

func (r *record) value(col string) any {
	return r.values[r.index[col]]
}

func (r *record) errorf(col string, format string, args ...any) error {
	return fmt.Errorf("%w: relation %s row %d column %s: %s",
		core.ErrSchemaMismatch, r.relation, r.row, col, fmt.Sprintf(format, args...))
}

func (r *record) costRow() (string, core.Date, decimal.Decimal, error) {
	pid, err := r.str("project_id")
	if err != nil {
		return "", core.Date{}, decimal.Zero, err
	}
	date, err := r.date("date")
	if err != nil {
		return "", core.Date{}, decimal.Zero, err
	}
	cost, err := r.number("cost")
	if err != nil {
		return "", core.Date{}, decimal.Zero, err
	}
	return pid, date, cost, nil
}

// str normalizes integer, text and blob identifiers to a string.
func (r *record) str(col string) (string, error) {
	switch v := r.value(col).(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", r.errorf(col, "null value")
	default:
		return "", r.errorf(col, "unsupported type %T", v)
	}
}

// number reads a numeric column. NULL reads as zero.
func (r *record) number(col string) (decimal.Decimal, error) {
	switch v := r.value(col).(type) {
	case nil:
		return decimal.Zero, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case []byte:
		return r.parseDecimal(col, string(v))
	case string:
		return r.parseDecimal(col, v)
	default:
		return decimal.Zero, r.errorf(col, "unsupported type %T", v)
	}
}

func (r *record) parseDecimal(col, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, r.errorf(col, "not a number: %q", s)
	}
	return d, nil
}

func (r *record) date(col string) (core.Date, error) {
	switch v := r.value(col).(type) {
	case time.Time:
		return core.DateOf(v), nil
	case string:
		return r.parseDate(col, v)
	case []byte:
		return r.parseDate(col, string(v))
	case nil:
		return core.Date{}, r.errorf(col, "null date")
	default:
		return core.Date{}, r.errorf(col, "unsupported type %T", v)
	}
}

func (r *record) parseDate(col, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, r.errorf(col, "%v", err)
	}
	return d, nil
}
