package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/builder-radar/internal/digest"
	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored opportunities, best score first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("list"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		scoredOnly, _ := cmd.Flags().GetBool("scored")
		opts := store.ListOpts{Limit: limit, Offset: offset, ScoredOnly: scoredOnly}
		if cmd.Flags().Changed("min-score") {
			minScore, _ := cmd.Flags().GetFloat64("min-score")
			opts.MinScore = &minScore
		}

		opps, err := st.ListTop(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "list")
		}

		if len(opps) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No opportunities found.")
			return nil
		}

		formatOpportunities(cmd.OutOrStdout(), opps)
		return nil
	},
}

// formatOpportunities writes a tabular list of opportunities to out.
func formatOpportunities(out io.Writer, opps []model.Opportunity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCORE\tTITLE\tPRIZE\tDEADLINE\tDISCOVERED\tURL")
	for _, o := range opps {
		score := "-"
		if o.Scored() {
			score = fmt.Sprintf("%.1f", o.Score.Total())
		}
		deadline := digest.Placeholder
		if o.Deadline != nil {
			deadline = o.Deadline.Format("2006-01-02")
		}
		prize := o.PrizePool
		if prize == "" {
			prize = digest.Placeholder
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID,
			score,
			truncateText(o.Title, 48),
			truncateText(prize, 24),
			deadline,
			o.DiscoveredAt.Format("2006-01-02 15:04"),
			o.URL,
		)
	}
	_ = w.Flush()
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	listCmd.Flags().Int("limit", 20, "max number of opportunities to display")
	listCmd.Flags().Int("offset", 0, "number of opportunities to skip")
	listCmd.Flags().Float64("min-score", 0, "only show opportunities with total_score at least this")
	listCmd.Flags().Bool("scored", false, "only show scored opportunities")
	rootCmd.AddCommand(listCmd)
}
