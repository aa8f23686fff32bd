package core

import (
	"fmt"
	"strings"
	"time"
)

// Filter selects transactions of one project within an inclusive date range.
type Filter struct {
	ProjectID string `json:"project_id"`
	Start     Date   `json:"start_date"`
	End       Date   `json:"end_date"`
}

// dateLayouts are tried in order. Date pickers send either a bare date or a
// midnight timestamp.
var dateLayouts = []string{
	time.DateOnly,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate parses s into a calendar date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseFilter builds a Filter from raw inputs. The project id is kept verbatim
// since it is matched exactly. Unparseable dates and a start after the end are
// reported as ErrInvalidFilter.
func ParseFilter(project, start, end string) (Filter, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: start date: %v", ErrInvalidFilter, err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: end date: %v", ErrInvalidFilter, err)
	}
	f := Filter{ProjectID: project, Start: s, End: e}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func (f Filter) Validate() error {
	if f.Start.After(f.End) {
		return fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidFilter, f.Start, f.End)
	}
	return nil
}

// Matches reports whether tx belongs to the filtered subset.
func (f Filter) Matches(tx Transaction) bool {
	return tx.ProjectID == f.ProjectID &&
		!tx.Date.Before(f.Start) &&
		!tx.Date.After(f.End)
}

// Key is a stable string form used for caching.
func (f Filter) Key() string {
	return f.ProjectID + "|" + f.Start.String() + "|" + f.End.String()
}
