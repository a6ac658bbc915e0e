package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sitescore/internal/geo"
	"github.com/sells-group/sitescore/internal/scoring"
)

var (
	rateLat  float64
	rateLng  float64
	rateJSON bool
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Score a single location",
	Long:  "Rates one coordinate and prints the breakdown: region tier, zone class, distances and the component scores.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p := geo.Coordinate{Lat: rateLat, Lng: rateLng}
		if !p.Valid() {
			return eris.Errorf("rate: invalid coordinate %s", p)
		}

		env, err := initEngine(ctx, cfg, nil)
		if err != nil {
			return err
		}

		b := env.Engine.Breakdown(p)
		if rateJSON {
			return writeBreakdownJSON(os.Stdout, env.Region.Name, b)
		}
		formatBreakdown(os.Stdout, env.Region.Name, b)
		return nil
	},
}

func init() {
	rateCmd.Flags().Float64Var(&rateLat, "lat", 0, "latitude in degrees")
	rateCmd.Flags().Float64Var(&rateLng, "lng", 0, "longitude in degrees")
	rateCmd.Flags().BoolVar(&rateJSON, "json", false, "print the breakdown as JSON")
	_ = rateCmd.MarkFlagRequired("lat")
	_ = rateCmd.MarkFlagRequired("lng")
	rootCmd.AddCommand(rateCmd)
}

// formatScore renders an undefined score as "-".
func formatScore(v float64) string {
	if scoring.IsUndefined(v) {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

// formatBreakdown writes a breakdown as aligned key/value lines.
func formatBreakdown(out io.Writer, regionName string, b scoring.Breakdown) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Point:\t%s\n", b.Point)
	_, _ = fmt.Fprintf(w, "Region:\t%s (%s tier)\n", regionName, b.Tier)
	_, _ = fmt.Fprintf(w, "Outcome:\t%s\n", b.Outcome)
	_, _ = fmt.Fprintf(w, "Class:\t%s\n", b.Class)
	if b.ExcludedBy != "" {
		_, _ = fmt.Fprintf(w, "Excluded by:\t%s\n", b.ExcludedBy)
	}
	if b.IncludedBy != "" {
		_, _ = fmt.Fprintf(w, "Included by:\t%s\n", b.IncludedBy)
	}
	if b.Outcome != scoring.OutcomeOutside {
		_, _ = fmt.Fprintf(w, "Cable:\t%.1f km (%.3f)\n", b.CableDistanceM/1000, b.CableScore)
		_, _ = fmt.Fprintf(w, "Station:\t%.1f km (%.3f)\n", b.StationDistanceM/1000, b.StationScore)
		_, _ = fmt.Fprintf(w, "Nearby capacity:\t%.0f MW\n", b.NearbyMW)
	}
	_, _ = fmt.Fprintf(w, "Score:\t%s\n", formatScore(b.Score))
	_ = w.Flush()
}

func writeBreakdownJSON(out io.Writer, regionName string, b scoring.Breakdown) error {
	v := struct {
		scoring.Breakdown
		Score   *float64 `json:"score"`
		Outcome string   `json:"outcome"`
		Tier    string   `json:"tier"`
		Region  string   `json:"region"`
	}{
		Breakdown: b,
		Outcome:   b.Outcome.String(),
		Tier:      b.Tier.String(),
		Region:    regionName,
	}
	if !scoring.IsUndefined(b.Score) {
		score := b.Score
		v.Score = &score
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
