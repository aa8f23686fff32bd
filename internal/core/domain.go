package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Materials Category = "Materials"
	Labor     Category = "Labor"
	Overhead  Category = "Overhead"
)

// Categories lists every cost category in canonical order.
var Categories = []Category{Materials, Labor, Overhead}

type (
	Category string

	Date struct {
		time.Time
	}

	// MaterialEntry is a row of the materials relation.
	MaterialEntry struct {
		ProjectID string
		Date      Date
		Cost      decimal.Decimal
	}

	// LaborEntry is a row of the labor relation. Its cost is derived.
	LaborEntry struct {
		ProjectID   string
		Date        Date
		HoursWorked decimal.Decimal
		HourlyRate  decimal.Decimal
	}

	// OverheadEntry is a row of the overhead relation.
	OverheadEntry struct {
		ProjectID string
		Date      Date
		Cost      decimal.Decimal
	}

	// Transaction is the unified cost record every raw row maps to.
	Transaction struct {
		ProjectID string          `json:"project_id"`
		Date      Date            `json:"date"`
		Cost      decimal.Decimal `json:"cost"`
		Category  Category        `json:"category"`
	}
)

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrInvalidFilter    = errors.New("invalid filter")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf keeps the calendar day of t as seen in t's own location. The result
// is midnight UTC of that day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// MarshalText implements encoding.TextMarshaler so views serialize dates as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalText accepts any layout ParseDate does.
func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalJSON overrides the promoted time.Time decoding.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

// rank orders categories canonically; unknown categories sort last.
func (c Category) rank() int {
	for i, k := range Categories {
		if k == c {
			return i
		}
	}
	return len(Categories)
}

func (e MaterialEntry) Transaction() Transaction {
	return Transaction{ProjectID: e.ProjectID, Date: e.Date, Cost: e.Cost, Category: Materials}
}

// Cost returns hours worked times hourly rate.
func (e LaborEntry) Cost() decimal.Decimal {
	return e.HoursWorked.Mul(e.HourlyRate)
}

func (e LaborEntry) Transaction() Transaction {
	return Transaction{ProjectID: e.ProjectID, Date: e.Date, Cost: e.Cost(), Category: Labor}
}

func (e OverheadEntry) Transaction() Transaction {
	return Transaction{ProjectID: e.ProjectID, Date: e.Date, Cost: e.Cost, Category: Overhead}
}

// Unify concatenates the three record sets into unified transactions:
// materials first, then labor, then overhead, each in input order.
func Unify(materials []MaterialEntry, labor []LaborEntry, overhead []OverheadEntry) []Transaction {
	out := make([]Transaction, 0, len(materials)+len(labor)+len(overhead))
	for _, m := range materials {
		out = append(out, m.Transaction())
	}
	for _, l := range labor {
		out = append(out, l.Transaction())
	}
	for _, o := range overhead {
		out = append(out, o.Transaction())
	}
	return out
}
