package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sitescore/internal/export"
	"github.com/sells-group/sitescore/internal/observability"
	"github.com/sells-group/sitescore/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved rasterisation runs",
	Long:  "Commands for listing, viewing, summarising and exporting runs saved by rasterize --save.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		regionName, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Region: regionName,
			Status: store.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count saved runs by status and region",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := observability.CollectRuns(ctx, st)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		formatRunStats(os.Stdout, snap)
		return nil
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write a saved run's field to CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		csvPath, _ := cmd.Flags().GetString("csv")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		if csvPath == "" && xlsxPath == "" {
			return eris.New("runs export: one of --csv or --xlsx is required")
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		field, err := st.LoadField(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		if csvPath != "" {
			if err := writeCSVFile(csvPath, field); err != nil {
				return err
			}
		}
		if xlsxPath != "" {
			if err := export.WriteXLSX(xlsxPath, field); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (pending, complete)")
	runsListCmd.Flags().String("region", "", "filter by region name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsExportCmd.Flags().String("csv", "", "write lng,lat,score rows to this CSV file")
	runsExportCmd.Flags().String("xlsx", "", "write the score grid to this XLSX workbook")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREGION\tSTATUS\tGRID\tDEFINED\tMEAN\tCREATED\tELAPSED")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t----\t-------\t----\t-------\t-------")

	for _, r := range runs {
		defined, mean := "-", "-"
		if r.Summary != nil {
			defined = fmt.Sprintf("%d/%d", r.Summary.Defined, r.Summary.Cells)
			if r.Summary.Defined > 0 {
				mean = fmt.Sprintf("%.3f", r.Summary.Mean)
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%s\t%s\t%s\t%.1fs\n",
			truncateID(r.ID),
			r.Region,
			r.Status,
			r.Spec.Cols, r.Spec.Rows,
			defined,
			mean,
			r.CreatedAt.Format("2006-01-02 15:04"),
			float64(r.ElapsedMS)/1000,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate counts to w.
func formatRunStats(out io.Writer, snap *observability.RunSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", snap.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", snap.ByStatus[string(store.RunStatusComplete)])
	_, _ = fmt.Fprintf(w, "Pending:\t%d\n", snap.ByStatus[string(store.RunStatusPending)])
	for _, name := range sortedKeys(snap.ByRegion) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", name, snap.ByRegion[name])
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
