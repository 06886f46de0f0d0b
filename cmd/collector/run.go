package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZamarianPatrick/lazypig-collector/api"
	"github.com/ZamarianPatrick/lazypig-collector/collector"
	"github.com/ZamarianPatrick/lazypig-collector/config"
	"github.com/ZamarianPatrick/lazypig-collector/datalog"
)

func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the sensors on every interval and log the readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(configPath)
			if err != nil {
				return err
			}

			hw, err := openHardware(s)
			if err != nil {
				return err
			}
			defer func() {
				if err := hw.Close(); err != nil {
					logrus.WithError(err).Warn("failed to close i2c bus")
				}
			}()

			csvSink, err := datalog.NewCSVSink(s.Output.CSVDir)
			if err != nil {
				return err
			}
			db, err := datalog.OpenDB(s.Output.Database)
			if err != nil {
				return err
			}
			sink := datalog.MultiSink{csvSink, db}
			defer func() {
				if err := sink.Close(); err != nil {
					logrus.WithError(err).Warn("failed to close data logs")
				}
			}()

			ctrl, err := collector.NewController(s, hw, newStore(s), sink)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return ctrl.Run(ctx)
			})
			if s.HTTP.Addr != "" {
				srv := api.NewServer(ctrl, db)
				g.Go(func() error {
					return srv.ListenAndServe(ctx, s.HTTP.Addr)
				})
			}

			return g.Wait()
		},
	}
}
