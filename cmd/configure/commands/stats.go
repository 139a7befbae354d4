package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/benvon/smart-survey/internal/database"
	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print collected survey counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx := context.Background()
			stats, err := database.NewResultRepository(db).Stats(ctx)
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			summary, err := database.NewImageRatingRepository(db).Summary(ctx)
			if err != nil {
				return fmt.Errorf("get rating summary: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Completed results:\t%d\n", stats.CompletedResults)
			fmt.Fprintf(tw, "Dropouts:\t%d\n", stats.Dropouts)
			fmt.Fprintf(tw, "Image ratings:\t%d\n", stats.ImageRatings)
			fmt.Fprintf(tw, "Image dropouts:\t%d\n", stats.ImageDropouts)
			if len(summary) > 0 {
				fmt.Fprintln(tw, "\nImage\tGood\tSoso")
				for _, s := range summary {
					fmt.Fprintf(tw, "%s\t%d\t%d\n", s.ImageFilename, s.Good, s.Soso)
				}
			}
			return tw.Flush()
		},
	}
}
