package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core"
)

// maxTableRows caps the detail table; the JSON API returns every row.
const maxTableRows = 500

// Trend chart geometry in SVG user units.
const (
	chartWidth  = 600.0
	chartHeight = 220.0
	chartPad    = 12.0
)

var hundred = decimal.NewFromInt(100)

// formatDollars formats an amount as "$1,234.56", rounding half away from zero.
func formatDollars(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg && !d.Round(2).IsZero() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// barWidth scales v against top to a percentage, keeping tiny non-zero values
// visible.
func barWidth(v, top decimal.Decimal) int {
	if !top.IsPositive() || !v.IsPositive() {
		return 0
	}
	width := int(v.Mul(hundred).Div(top).Round(0).IntPart())
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}

// share formats part as a percentage of whole with one decimal.
func share(part, whole decimal.Decimal) string {
	if !whole.IsPositive() {
		return "0.0%"
	}
	return part.Mul(hundred).Div(whole).StringFixed(1) + "%"
}

func categoryClass(c core.Category) string {
	return strings.ToLower(string(c))
}

type projectOption struct {
	ID       string
	Selected bool
}

type filterForm struct {
	Project  string
	Start    string
	End      string
	MinDate  string
	MaxDate  string
	Projects []projectOption
}

type summaryCard struct {
	Label  string
	Amount string
	Class  string
}

type chartSeries struct {
	Category string
	Class    string
	Points   string
}

type trendRow struct {
	Date     string
	Category string
	Class    string
	Amount   string
}

type breakdownRow struct {
	Category string
	Class    string
	Amount   string
	Share    string
	Width    int
}

type comparisonBar struct {
	Category string
	Class    string
	Amount   string
	Width    int
}

type comparisonGroup struct {
	ProjectID string
	Bars      []comparisonBar
}

type transactionRow struct {
	Date      string
	ProjectID string
	Category  string
	Class     string
	Amount    string
}

// dashboardData is the template model for both the full page and the partial.
type dashboardData struct {
	Form            filterForm
	Error           string
	HasData         bool
	Cards           []summaryCard
	Series          []chartSeries
	Trend           []trendRow
	Breakdown       []breakdownRow
	Comparison      []comparisonGroup
	Transactions    []transactionRow
	TotalRows       int
	Truncated       bool
	Version         int64
	LoadedAt        string
	ChartWidth      float64
	ChartHeight     float64
	ChartAxisBottom float64
}

// newDashboardData builds the template model for res. params echo the user's
// raw inputs back into the form when the filter was rejected.
func newDashboardData(ds *core.Dataset, params FilterParams, res core.Result) dashboardData {
	v := res.View
	data := dashboardData{
		HasData:         len(v.Transactions) > 0,
		Version:         ds.Version(),
		LoadedAt:        ds.LoadedAt().Format(time.RFC3339),
		ChartWidth:      chartWidth,
		ChartHeight:     chartHeight,
		ChartAxisBottom: chartHeight - chartPad,
	}

	form := filterForm{Project: params.Project, Start: params.Start, End: params.End}
	if res.Err == nil {
		form.Project = v.Filter.ProjectID
		form.Start = v.Filter.Start.String()
		form.End = v.Filter.End.String()
	} else {
		data.Error = res.Err.Error()
	}
	if first, last, ok := ds.Bounds(); ok {
		form.MinDate, form.MaxDate = first.String(), last.String()
	}
	for _, p := range ds.Projects() {
		form.Projects = append(form.Projects, projectOption{ID: p, Selected: p == form.Project})
	}
	data.Form = form

	data.Cards = []summaryCard{{Label: "Total Cost", Amount: formatDollars(v.Totals.Total), Class: "total"}}
	for _, c := range core.Categories {
		data.Cards = append(data.Cards, summaryCard{
			Label:  string(c) + " Cost",
			Amount: formatDollars(v.Totals.ByCategory(c)),
			Class:  categoryClass(c),
		})
	}

	data.Series = trendSeries(v.Trend)
	for _, p := range v.Trend {
		data.Trend = append(data.Trend, trendRow{
			Date:     p.Date.String(),
			Category: string(p.Category),
			Class:    categoryClass(p.Category),
			Amount:   formatDollars(p.Cost),
		})
	}

	for _, b := range v.Breakdown {
		data.Breakdown = append(data.Breakdown, breakdownRow{
			Category: string(b.Category),
			Class:    categoryClass(b.Category),
			Amount:   formatDollars(b.Cost),
			Share:    share(b.Cost, v.Totals.Total),
			Width:    barWidth(b.Cost, v.Totals.Total),
		})
	}

	data.Comparison = comparisonGroups(v.Comparison)

	data.TotalRows = len(v.Transactions)
	rows := v.Transactions
	if len(rows) > maxTableRows {
		rows = rows[:maxTableRows]
		data.Truncated = true
	}
	for _, tx := range rows {
		data.Transactions = append(data.Transactions, transactionRow{
			Date:      tx.Date.String(),
			ProjectID: tx.ProjectID,
			Category:  string(tx.Category),
			Class:     categoryClass(tx.Category),
			Amount:    formatDollars(tx.Cost),
		})
	}
	return data
}

// comparisonGroups groups consecutive entries by project. Bars share one scale
// so projects are visually comparable.
func comparisonGroups(entries []core.ProjectCategoryAmount) []comparisonGroup {
	top := decimal.Zero
	for _, e := range entries {
		if e.Cost.GreaterThan(top) {
			top = e.Cost
		}
	}

	var groups []comparisonGroup
	for _, e := range entries {
		if len(groups) == 0 || groups[len(groups)-1].ProjectID != e.ProjectID {
			groups = append(groups, comparisonGroup{ProjectID: e.ProjectID})
		}
		g := &groups[len(groups)-1]
		g.Bars = append(g.Bars, comparisonBar{
			Category: string(e.Category),
			Class:    categoryClass(e.Category),
			Amount:   formatDollars(e.Cost),
			Width:    barWidth(e.Cost, top),
		})
	}
	return groups
}

// trendSeries lays out one polyline per category over the distinct trend dates.
// Trend points arrive ordered by date, so first appearance gives the x order.
func trendSeries(points []core.TrendPoint) []chartSeries {
	if len(points) == 0 {
		return nil
	}

	xIndex := make(map[string]int)
	maxCost := 0.0
	for _, p := range points {
		if _, ok := xIndex[p.Date.String()]; !ok {
			xIndex[p.Date.String()] = len(xIndex)
		}
		if c := p.Cost.InexactFloat64(); c > maxCost {
			maxCost = c
		}
	}

	n := len(xIndex)
	x := func(i int) float64 {
		if n == 1 {
			return chartWidth / 2
		}
		return chartPad + float64(i)*(chartWidth-2*chartPad)/float64(n-1)
	}
	y := func(c float64) float64 {
		if maxCost <= 0 {
			return chartHeight - chartPad
		}
		return chartHeight - chartPad - c/maxCost*(chartHeight-2*chartPad)
	}

	byCategory := make(map[core.Category][]string)
	for _, p := range points {
		byCategory[p.Category] = append(byCategory[p.Category],
			fmt.Sprintf("%.1f,%.1f", x(xIndex[p.Date.String()]), y(p.Cost.InexactFloat64())))
	}

	var out []chartSeries
	for _, c := range core.Categories {
		if pts, ok := byCategory[c]; ok {
			out = append(out, chartSeries{Category: string(c), Class: categoryClass(c), Points: strings.Join(pts, " ")})
		}
	}
	return out
}
