package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/export"
	"github.com/sells-group/sitescore/internal/raster"
)

var (
	rasterCSV     string
	rasterXLSX    string
	rasterSave    bool
	rasterCols    int
	rasterRows    int
	rasterWorkers int
)

var rasterizeCmd = &cobra.Command{
	Use:   "rasterize",
	Short: "Score every cell of the configured grid",
	Long:  "Evaluates the score over the configured longitude/latitude grid in parallel, then writes CSV or XLSX output and optionally saves the run to the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("raster"); err != nil {
			return err
		}

		env, err := initEngine(ctx, cfg, nil)
		if err != nil {
			return err
		}

		spec := raster.SpecFromConfig(cfg.Raster)
		if rasterCols > 0 {
			spec.Cols = rasterCols
		}
		if rasterRows > 0 {
			spec.Rows = rasterRows
		}
		workers := cfg.Raster.Workers
		if rasterWorkers > 0 {
			workers = rasterWorkers
		}

		field, err := raster.Rasterize(ctx, env.Engine, spec, workers)
		if err != nil {
			return err
		}

		if rasterCSV != "" {
			if err := writeCSVFile(rasterCSV, field); err != nil {
				return err
			}
		}
		if rasterXLSX != "" {
			if err := export.WriteXLSX(rasterXLSX, field); err != nil {
				return err
			}
		}

		runID := ""
		if rasterSave {
			st, err := initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			run, err := st.CreateRun(ctx, env.Region.Name, spec)
			if err != nil {
				return eris.Wrap(err, "rasterize: create run")
			}
			if err := st.SaveField(ctx, run.ID, field); err != nil {
				return eris.Wrap(err, "rasterize: save field")
			}
			runID = run.ID
			zap.L().Info("run saved", zap.String("run_id", run.ID))
		}

		formatSummary(os.Stdout, env.Region.Name, spec, field, runID)
		return nil
	},
}

func init() {
	rasterizeCmd.Flags().StringVar(&rasterCSV, "csv", "", "write lng,lat,score rows to this CSV file")
	rasterizeCmd.Flags().StringVar(&rasterXLSX, "xlsx", "", "write the score grid to this XLSX workbook")
	rasterizeCmd.Flags().BoolVar(&rasterSave, "save", false, "save the run and its cells to the configured store")
	rasterizeCmd.Flags().IntVar(&rasterCols, "cols", 0, "grid columns (default from config)")
	rasterizeCmd.Flags().IntVar(&rasterRows, "rows", 0, "grid rows (default from config)")
	rasterizeCmd.Flags().IntVar(&rasterWorkers, "workers", 0, "concurrent rows (default from config)")
	rootCmd.AddCommand(rasterizeCmd)
}

func writeCSVFile(path string, field *raster.Field) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := export.WriteCSV(f, field); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

// formatSummary writes the grid and score summary of a rasterisation to w.
func formatSummary(out io.Writer, regionName string, spec raster.Spec, field *raster.Field, runID string) {
	s := field.Summary()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Region:\t%s\n", regionName)
	_, _ = fmt.Fprintf(w, "Grid:\t%dx%d (lng %g..%g, lat %g..%g)\n",
		spec.Cols, spec.Rows, spec.LngStart, spec.LngStop, spec.LatStart, spec.LatStop)
	_, _ = fmt.Fprintf(w, "Cells:\t%d (%d defined, %d undefined, %d zero)\n", s.Cells, s.Defined, s.Undefined, s.Zero)
	if s.Defined > 0 {
		_, _ = fmt.Fprintf(w, "Score:\tmin %.3f  max %.3f  mean %.3f\n", s.Min, s.Max, s.Mean)
	}
	_, _ = fmt.Fprintf(w, "Elapsed:\t%.2fs\n", field.Elapsed.Seconds())
	if runID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", runID)
	}
	_ = w.Flush()
}
