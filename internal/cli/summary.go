package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"jobcost/internal/core"
	"jobcost/internal/snapshot"
)

type summaryOptions struct {
	project string
	start   string
	end     string
	asJSON  bool
}

type summaryOutput struct {
	SnapshotVersion int64     `json:"snapshot_version"`
	View            core.View `json:"view"`
	Error           string    `json:"error,omitempty"`
}

func newSummaryCommand(a *app) *cobra.Command {
	var opts summaryOptions

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the cost summary for one project and date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.project, "project", "", "project id (default: first project)")
	cmd.Flags().StringVar(&opts.start, "start", "", "start date YYYY-MM-DD (default: earliest date)")
	cmd.Flags().StringVar(&opts.end, "end", "", "end date YYYY-MM-DD (default: latest date)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full view as JSON")

	return cmd
}

func runSummary(ctx context.Context, a *app, opts summaryOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := OpenStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	store.SetLogger(a.logger)

	holder := snapshot.NewHolder(store, snapshot.WithLogger(a.logger))
	ds, err := holder.Refresh(ctx, "cli")
	if err != nil {
		return err
	}

	res := core.Evaluate(ds, opts.project, opts.start, opts.end)
	if opts.asJSON {
		resp := summaryOutput{SnapshotVersion: ds.Version(), View: res.View}
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode view: %w", err)
		}
		return res.Err
	}
	if res.Err != nil {
		return res.Err
	}
	return writeSummary(out, res.View)
}

func writeSummary(out io.Writer, v core.View) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Project %s\t%s to %s\n\n", v.Filter.ProjectID, v.Filter.Start, v.Filter.End)
	fmt.Fprintf(tw, "Total Cost\t%s\n", v.Totals.Total.StringFixed(2))
	for _, c := range core.Categories {
		fmt.Fprintf(tw, "%s Cost\t%s\n", c, v.Totals.ByCategory(c).StringFixed(2))
	}

	fmt.Fprintln(tw, "\nCategory\tCost\tShare")
	for _, b := range v.Breakdown {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Category, b.Cost.StringFixed(2), percent(b.Cost, v.Totals.Total))
	}

	fmt.Fprintln(tw, "\nProject\tCategory\tCost")
	for _, e := range v.Comparison {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ProjectID, e.Category, e.Cost.StringFixed(2))
	}

	fmt.Fprintf(tw, "\n%d transactions\n", len(v.Transactions))
	return tw.Flush()
}

func percent(part, whole decimal.Decimal) string {
	if !whole.IsPositive() {
		return "0.0%"
	}
	return part.Mul(decimal.NewFromInt(100)).Div(whole).StringFixed(1) + "%"
}
