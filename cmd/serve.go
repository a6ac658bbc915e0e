package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/observability"
	"github.com/sells-group/sitescore/internal/raster"
	"github.com/sells-group/sitescore/internal/server"
	"github.com/sells-group/sitescore/internal/store"
)

var (
	servePort    int
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		metrics, err := observability.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, cfg, metrics)
		if err != nil {
			return err
		}

		var st store.Store
		if !serveNoStore {
			st, err = initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			go observability.NewRunChecker(st, metrics, time.Minute).Run(ctx)
		}

		srv, err := server.New(server.Options{
			Engine:     env.Engine,
			RegionName: env.Region.Name,
			Grid:       raster.SpecFromConfig(cfg.Raster),
			Workers:    cfg.Raster.Workers,
			Config:     cfg.Server,
			Metrics:    metrics,
			Store:      st,
		})
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		zap.L().Info("serving", zap.Bool("store", st != nil))
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "serve without saved runs")
	rootCmd.AddCommand(serveCmd)
}
