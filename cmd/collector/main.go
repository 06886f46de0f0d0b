package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
	"github.com/ZamarianPatrick/lazypig-collector/collector"
	"github.com/ZamarianPatrick/lazypig-collector/config"
)

var (
	logLevel   = "info"
	configPath = config.DefaultPath
	fake       = false
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}

	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lazypig-collector",
		Short: "lazypig-collector logs soil moisture, light and air readings of potted plants",
		Long: `lazypig-collector polls the soil moisture, light and air sensors of a plant
station, normalizes soil readings with a per-probe calibration, detects
watering and appends every reading to CSV files and a SQLite database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "settings file path")
	globalFlags.BoolVar(&fake, "fake", false, "use simulated sensors instead of the hardware")

	cmd.AddCommand(
		NewRunCommand(),
		NewCalibrateCommand(),
		NewCheckCommand(),
		NewStatusCommand(),
	)

	return cmd
}

// openHardware returns the real sensors, or fakes when --fake is set.
func openHardware(s config.Settings) (*collector.Hardware, error) {
	if fake {
		hw, _ := collector.FakeHardware(s)
		return hw, nil
	}
	return collector.OpenHardware(s)
}

func newStore(s config.Settings) *calibration.FileStore {
	return calibration.NewFileStore(s.Calibration, s.CalibrationFiles())
}
