package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
	"github.com/ZamarianPatrick/lazypig-collector/config"
)

var prompts = map[calibration.Mode]string{
	calibration.ModeDry: "Is the soil moisture sensor of %s dry? (enter 'y' to proceed): ",
	calibration.ModeWet: "Is the soil moisture sensor of %s in water? (enter 'y' to proceed): ",
}

func NewCalibrateCommand() *cobra.Command {
	var (
		mode     string
		samples  int
		interval time.Duration
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate <plant-id>",
		Short: "Capture the dry and wet voltage of a soil probe",
		Long: `Capture the dry and wet voltage of a soil probe.

Hold the probe in dry air (or dry soil) for the dry capture and in water for
the wet capture. Stop the collector while calibrating: it keeps the record it
loaded at startup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(configPath)
			if err != nil {
				return err
			}

			id := args[0]
			if _, ok := s.Plant(id); !ok {
				return pkgerrors.Errorf("unknown plant %q", id)
			}

			var modes []calibration.Mode
			if mode == "both" {
				modes = []calibration.Mode{calibration.ModeDry, calibration.ModeWet}
			} else {
				m, err := calibration.ParseMode(mode)
				if err != nil {
					return err
				}
				modes = []calibration.Mode{m}
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

			opts := s.CaptureOptions()
			if cmd.Flags().Changed("samples") {
				opts.Samples = samples
			}
			if cmd.Flags().Changed("interval") {
				opts.Interval = interval
			}

			c := &calibrator{
				store:   newStore(s),
				sampler: hw.Soil[id],
				opts:    opts,
				in:      bufio.NewReader(cmd.InOrStdin()),
				out:     cmd.OutOrStdout(),
				yes:     yes,
			}
			return c.run(cmd.Context(), id, modes)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "both", "bound to capture (dry, wet or both)")
	cmd.Flags().IntVar(&samples, "samples", calibration.DefaultSamples, "number of samples per capture")
	cmd.Flags().DurationVar(&interval, "interval", calibration.DefaultSampleInterval, "delay between samples")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before each capture")

	return cmd
}

type calibrator struct {
	store   calibration.Store
	sampler calibration.Sampler
	opts    calibration.CaptureOptions
	in      *bufio.Reader
	out     io.Writer
	yes     bool
}

func (c *calibrator) confirm(id string, mode calibration.Mode) (bool, error) {
	if c.yes {
		return true, nil
	}
	fmt.Fprintf(c.out, prompts[mode], id)
	answer, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, pkgerrors.Wrap(err, "failed to read answer")
	}
	return strings.TrimSpace(answer) == "y", nil
}

func (c *calibrator) run(ctx context.Context, id string, modes []calibration.Mode) error {
	rec, err := c.store.Load(id)
	if err != nil {
		if !errors.Is(err, calibration.ErrCorrupt) {
			return err
		}
		logrus.WithError(err).Warn("existing calibration is corrupt, starting over")
		rec = calibration.DefaultRecord()
	}
	wasCalibrated := rec.Calibrated()

	captured := 0
	for _, m := range modes {
		ok, err := c.confirm(id, m)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(c.out, "skipping %s capture\n", m)
			continue
		}

		v, err := calibration.Capture(ctx, c.sampler, m, c.opts)
		if err != nil {
			return pkgerrors.Wrapf(err, "%s capture of %s failed", m, id)
		}
		fmt.Fprintf(c.out, "\n%s voltage value: %.2fV\n\n", m, v)

		rec.Apply(m, v, time.Now())
		captured++
	}

	if captured == 0 {
		return pkgerrors.New("nothing captured, calibration unchanged")
	}

	if rec.Captured() || wasCalibrated {
		if err := rec.MarkCalibrated(time.Now()); err != nil {
			return pkgerrors.Wrapf(err, "captured bounds of %s are unusable, check the probe and retry", id)
		}
	} else {
		if err := rec.Validate(); err != nil {
			return pkgerrors.Wrapf(err, "captured bound of %s conflicts with the other one", id)
		}
		logrus.WithField("plant", id).Warn("only one bound captured, capture the other one to finish calibration")
	}

	if err := c.store.Save(id, rec); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "calibration data saved: %s\n", rec)
	return nil
}
