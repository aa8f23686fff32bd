package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents a cost aggregated by category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Cost     decimal.Decimal `json:"cost"`
}

// Totals holds the summary card values for a filter.
type Totals struct {
	Total     decimal.Decimal `json:"total"`
	Materials decimal.Decimal `json:"materials"`
	Labor     decimal.Decimal `json:"labor"`
	Overhead  decimal.Decimal `json:"overhead"`
}

// TrendPoint is the cost of one category on one date.
type TrendPoint struct {
	Date     Date            `json:"date"`
	Category Category        `json:"category"`
	Cost     decimal.Decimal `json:"cost"`
}

// ProjectCategoryAmount is the cost of one category within one project.
type ProjectCategoryAmount struct {
	ProjectID string          `json:"project_id"`
	Category  Category        `json:"category"`
	Cost      decimal.Decimal `json:"cost"`
}

// View bundles everything the dashboard renders for one filter evaluation.
type View struct {
	Filter       Filter                  `json:"filter"`
	Totals       Totals                  `json:"totals"`
	Trend        []TrendPoint            `json:"trend"`
	Breakdown    []CategoryAmount        `json:"breakdown"`
	Comparison   []ProjectCategoryAmount `json:"comparison"`
	Transactions []Transaction           `json:"transactions"`
}

// ByCategory returns the total for c.
func (t Totals) ByCategory(c Category) decimal.Decimal {
	switch c {
	case Materials:
		return t.Materials
	case Labor:
		return t.Labor
	case Overhead:
		return t.Overhead
	}
	return decimal.Zero
}

func (t *Totals) add(tx Transaction) {
	t.Total = t.Total.Add(tx.Cost)
	switch tx.Category {
	case Materials:
		t.Materials = t.Materials.Add(tx.Cost)
	case Labor:
		t.Labor = t.Labor.Add(tx.Cost)
	case Overhead:
		t.Overhead = t.Overhead.Add(tx.Cost)
	}
}

// Summarize evaluates f against ds. Totals, trend, breakdown and transactions cover
// the filtered subset; Comparison always covers the whole dataset so that every
// project stays comparable regardless of the current filter.
func Summarize(ds *Dataset, f Filter) View {
	v := View{
		Filter:       f,
		Trend:        []TrendPoint{},
		Breakdown:    []CategoryAmount{},
		Transactions: []Transaction{},
		Comparison:   Compare(ds),
	}
	if ds == nil {
		return v
	}

	type trendKey struct {
		date     Date
		category Category
	}
	trend := make(map[trendKey]decimal.Decimal)
	breakdown := make(map[Category]decimal.Decimal)

	for _, tx := range ds.txs {
		if !f.Matches(tx) {
			continue
		}
		v.Transactions = append(v.Transactions, tx)
		v.Totals.add(tx)
		k := trendKey{tx.Date, tx.Category}
		trend[k] = trend[k].Add(tx.Cost)
		breakdown[tx.Category] = breakdown[tx.Category].Add(tx.Cost)
	}

	for k, cost := range trend {
		v.Trend = append(v.Trend, TrendPoint{Date: k.date, Category: k.category, Cost: cost})
	}
	sort.Slice(v.Trend, func(i, j int) bool {
		a, b := v.Trend[i], v.Trend[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Category.rank() < b.Category.rank()
	})

	for _, c := range Categories {
		if cost, ok := breakdown[c]; ok {
			v.Breakdown = append(v.Breakdown, CategoryAmount{Category: c, Cost: cost})
		}
	}
	return v
}

// Compare sums cost by project and category over the entire dataset, ordered by
// project first-seen order and canonical category order.
func Compare(ds *Dataset) []ProjectCategoryAmount {
	out := []ProjectCategoryAmount{}
	if ds == nil {
		return out
	}
	type key struct {
		project  string
		category Category
	}
	sums := make(map[key]decimal.Decimal)
	for _, tx := range ds.txs {
		k := key{tx.ProjectID, tx.Category}
		sums[k] = sums[k].Add(tx.Cost)
	}
	for _, p := range ds.projects {
		for _, c := range Categories {
			if cost, ok := sums[key{p, c}]; ok {
				out = append(out, ProjectCategoryAmount{ProjectID: p, Category: c, Cost: cost})
			}
		}
	}
	return out
}

// Result is a view that may carry a recoverable filter error.
type Result struct {
	View
	Err error
}

// Evaluate resolves raw filter inputs against ds and summarizes. It never fails:
// an invalid filter yields an empty view with Err set so the caller can show an
// inline message instead of data.
func Evaluate(ds *Dataset, project, start, end string) Result {
	if ds == nil {
		ds = NewDataset(0, time.Time{}, nil)
	}
	f, err := ds.Resolve(project, start, end)
	if err != nil {
		return Reject(ds, err)
	}
	return Result{View: Summarize(ds, f)}
}

// Reject is the Result for a filter refused before evaluation.
func Reject(ds *Dataset, err error) Result {
	if ds == nil {
		ds = NewDataset(0, time.Time{}, nil)
	}
	return Result{View: emptyView(ds), Err: err}
}

// emptyView is the view shown for a rejected filter: no filtered data, but the
// cross-project comparison is still available.
func emptyView(ds *Dataset) View {
	return View{
		Trend:        []TrendPoint{},
		Breakdown:    []CategoryAmount{},
		Transactions: []Transaction{},
		Comparison:   Compare(ds),
	}
}
