package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
	"github.com/ZamarianPatrick/lazypig-collector/collector"
	"github.com/ZamarianPatrick/lazypig-collector/config"
	"github.com/ZamarianPatrick/lazypig-collector/datalog"
)

func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Read every sensor once and print the readings without logging them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(configPath)
			if err != nil {
				return err
			}

			hw, err := openHardware(s)
			if err != nil {
				return err
			}
			defer hw.Close()

			ctrl, err := collector.NewController(s, hw, readOnlyStore{newStore(s)}, nil)
			if err != nil {
				return err
			}

			printEntries(cmd.OutOrStdout(), ctrl.Read(cmd.Context()))
			return nil
		},
	}
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the calibration of every plant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(configPath)
			if err != nil {
				return err
			}

			store := newStore(s)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLANT\tCHANNEL\tFILE\tCALIBRATION")
			for _, p := range s.Plants {
				var state string
				rec, err := store.Load(p.ID)
				switch {
				case err != nil:
					state = color.RedString("error: %v", err)
				case rec.Calibrated():
					state = color.GreenString("%s", rec)
				default:
					state = color.YellowString("%s", rec)
				}
				fmt.Fprintf(w, "%s\tAIN%d\t%s\t%s\n", p.ID, p.Channel, store.Path(p.ID), state)
			}
			return w.Flush()
		},
	}
}

// readOnlyStore keeps check runs from moving the watering baseline.
type readOnlyStore struct {
	calibration.Store
}

func (readOnlyStore) Save(string, *calibration.Record) error { return nil }

func printEntries(out io.Writer, entries []*datalog.Entry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLANT\tSOIL %\tWATERED\tML\tLUX\tTEMP C\tHUMIDITY %")
	for _, e := range entries {
		row := e.Row()
		// soil, lux, temperature, humidity, watered, ml in Headers order
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.PlantID, dash(row[6]), dash(row[10]), dash(row[11]), dash(row[7]), dash(row[8]), dash(row[9]))
	}
	_ = w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
