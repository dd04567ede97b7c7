package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"starstack/internal/history"
)

func newHistoryCmd(_ *rootOptions) *cobra.Command {
	var (
		dbPath string
		limit  int
		frames bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded stacking runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			runs, err := store.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  %-9s frames=%d ref=%d aligned=%d rejected=%d  %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ID, r.Status,
					r.FrameCount, r.Reference, r.Aligned, r.Rejected, r.OutputPath)
				if r.Status == history.StatusFailed {
					fmt.Printf("    failed at %s: %s\n", r.Stage, r.Error)
				}
				if !frames {
					continue
				}
				fs, err := store.Frames(ctx, r.ID)
				if err != nil {
					return err
				}
				for _, f := range fs {
					line := fmt.Sprintf("    %3d %-9s stars=%-3d quality=%8.2f %s", f.Index, f.Status, f.Stars, f.Quality, f.Path)
					if f.Model != "" {
						line += fmt.Sprintf("  %s q=%.3f n=%d", f.Model, f.AlignmentQuality, f.Correspondences)
					}
					if f.Reason != "" {
						line += "  " + f.Reason
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite history database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().BoolVar(&frames, "frames", false, "list per-frame outcomes")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
