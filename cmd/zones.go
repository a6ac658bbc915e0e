package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/sitescore/internal/zoning"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Summarise the loaded planning zones",
	Long:  "Loads the zone dataset, partitions it by the configured include and exclude codes, and prints per-code counts for each set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, cfg, nil)
		if err != nil {
			return err
		}

		formatZones(os.Stdout, len(env.Datasets.Zones), env.Engine.Zones())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(zonesCmd)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatZones writes the include and exclude sets' code counts to w.
func formatZones(out io.Writer, loaded int, c *zoning.Classifier) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Zones loaded:\t%d\n", loaded)
	for _, set := range []struct {
		name string
		set  *zoning.Set
	}{
		{"Include", c.Include},
		{"Exclude", c.Exclude},
	} {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", set.name, set.set.Len())
		counts := set.set.CodeCounts()
		for _, code := range sortedKeys(counts) {
			_, _ = fmt.Fprintf(w, "  %s\t%d\n", code, counts[code])
		}
	}
	_ = w.Flush()
}
