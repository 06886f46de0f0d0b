package config

import (
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
	"github.com/ZamarianPatrick/lazypig-collector/retry"
	"github.com/ZamarianPatrick/lazypig-collector/sensors"
	"github.com/ZamarianPatrick/lazypig-collector/soil"
)

const DefaultPath = "./collector.yml"

type Settings struct {
	Bus          string         `yaml:"bus"`
	ADCAddress   uint16         `yaml:"adcAddress"`
	ADCGain      sensors.Gain   `yaml:"adcGain"`
	LightAddress uint16         `yaml:"lightAddress"`
	AirPin       string         `yaml:"airPin"`
	Interval     time.Duration  `yaml:"interval"`
	Retry        RetrySetting   `yaml:"retry"`
	Watering     WaterSetting   `yaml:"watering"`
	Capture      CaptureSetting `yaml:"capture"`
	Calibration  string         `yaml:"calibrationDir"`
	Output       OutputSetting  `yaml:"output"`
	HTTP         HTTPSetting    `yaml:"http"`
	Environment  string         `yaml:"environment"`
	Plants       []PlantSetting `yaml:"plants"`
}

type RetrySetting struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Wait        time.Duration `yaml:"wait"`
}

type WaterSetting struct {
	Threshold     float64 `yaml:"threshold"`
	MLPerWatering int     `yaml:"mlPerWatering"`
}

type CaptureSetting struct {
	Samples  int           `yaml:"samples"`
	Interval time.Duration `yaml:"interval"`
}

type OutputSetting struct {
	CSVDir   string `yaml:"csvDir"`
	Database string `yaml:"database"`
}

type HTTPSetting struct {
	Addr string `yaml:"addr"`
}

type PlantSetting struct {
	ID              string   `yaml:"id"`
	Channel         int      `yaml:"channel"`
	CalibrationFile string   `yaml:"calibrationFile"`
	Taxonomy        Taxonomy `yaml:"taxonomy"`
}

type Taxonomy struct {
	Order     string `yaml:"order"`
	Family    string `yaml:"family"`
	Subfamily string `yaml:"subfamily"`
	Genus     string `yaml:"genus"`
}

var peaceLily = Taxonomy{
	Order:     "Alismatales",
	Family:    "Araceae",
	Subfamily: "Monsteroideae",
	Genus:     "Spathiphylleae",
}

// Default returns the settings of the two peace lily station.
func Default() Settings {
	return Settings{
		Bus:          "1",
		ADCAddress:   sensors.DefaultADS1115Address,
		ADCGain:      sensors.GainOne,
		LightAddress: sensors.DefaultBH1750Address,
		AirPin:       "GPIO12",
		Interval:     30 * time.Minute,
		Retry: RetrySetting{
			MaxAttempts: retry.DefaultMaxAttempts,
			Wait:        retry.DefaultWait,
		},
		Watering: WaterSetting{
			Threshold:     soil.DefaultWaterThreshold,
			MLPerWatering: soil.DefaultMLPerWatering,
		},
		Capture: CaptureSetting{
			Samples:  calibration.DefaultSamples,
			Interval: calibration.DefaultSampleInterval,
		},
		Calibration: "./calibration",
		Output: OutputSetting{
			CSVDir:   "./data",
			Database: "./db.sqlite",
		},
		Environment: "indoor",
		Plants: []PlantSetting{
			{
				ID:              "peace-lily-1",
				Channel:         0,
				CalibrationFile: "calibration_data_1.json",
				Taxonomy:        peaceLily,
			},
			{
				ID:              "peace-lily-2",
				Channel:         1,
				CalibrationFile: "calibration_data_2.json",
				Taxonomy:        peaceLily,
			},
		},
	}
}

// Load reads the settings at path. A missing file is created with the
// defaults.
func Load(path string) (Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s := Default()
		if err := Save(path, s); err != nil {
			return Settings{}, err
		}
		logrus.WithField("path", path).Info("settings not found, wrote defaults")
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, pkgerrors.Wrapf(err, "failed to read settings %s", path)
	}

	// Start from the defaults so a partial file only overrides what it names.
	s := Default()
	s.Plants = nil
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return Settings{}, pkgerrors.Wrapf(err, "failed to parse settings %s", path)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, pkgerrors.Wrapf(err, "invalid settings %s", path)
	}

	return s, nil
}

func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode settings")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return pkgerrors.Wrapf(err, "failed to create %s", dir)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write settings %s", path)
	}
	return nil
}

func (s Settings) Validate() error {
	if len(s.Plants) == 0 {
		return pkgerrors.New("at least one plant is required")
	}
	if s.Interval <= 0 {
		return pkgerrors.Errorf("interval must be positive, got %s", s.Interval)
	}
	if s.Retry.MaxAttempts < 1 {
		return pkgerrors.Errorf("retry.maxAttempts must be at least 1, got %d", s.Retry.MaxAttempts)
	}
	if s.Retry.Wait < 0 {
		return pkgerrors.Errorf("retry.wait must not be negative, got %s", s.Retry.Wait)
	}
	if s.Watering.Threshold < 0 {
		return pkgerrors.Errorf("watering.threshold must not be negative, got %v", s.Watering.Threshold)
	}
	if !s.ADCGain.Valid() {
		return pkgerrors.Errorf("unknown adcGain %q", s.ADCGain)
	}

	seen := make(map[string]bool, len(s.Plants))
	for _, p := range s.Plants {
		if p.ID == "" {
			return pkgerrors.New("plant id must not be empty")
		}
		if seen[p.ID] {
			return pkgerrors.Errorf("duplicate plant id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Channel < 0 || p.Channel > 3 {
			return pkgerrors.Errorf("plant %s: channel must be 0..3, got %d", p.ID, p.Channel)
		}
	}

	return nil
}

// Plant returns the plant with the given id.
func (s Settings) Plant(id string) (PlantSetting, bool) {
	for _, p := range s.Plants {
		if p.ID == id {
			return p, true
		}
	}
	return PlantSetting{}, false
}

// CalibrationFiles maps plant ids to their configured calibration files.
func (s Settings) CalibrationFiles() map[string]string {
	files := make(map[string]string, len(s.Plants))
	for _, p := range s.Plants {
		files[p.ID] = p.CalibrationFile
	}
	return files
}

func (s Settings) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: s.Retry.MaxAttempts,
		Wait:        s.Retry.Wait,
	}
}

func (s Settings) SoilOptions() soil.Options {
	return soil.Options{
		WaterThreshold: s.Watering.Threshold,
		MLPerWatering:  s.Watering.MLPerWatering,
	}
}

func (s Settings) CaptureOptions() calibration.CaptureOptions {
	return calibration.CaptureOptions{
		Samples:  s.Capture.Samples,
		Interval: s.Capture.Interval,
	}
}

func (s Settings) LogrusFields() logrus.Fields {
	ids := make([]string, len(s.Plants))
	for i, p := range s.Plants {
		ids[i] = p.ID
	}
	return logrus.Fields{
		"bus":         s.Bus,
		"interval":    s.Interval.String(),
		"retry":       s.Retry.MaxAttempts,
		"retryWait":   s.Retry.Wait.String(),
		"threshold":   s.Watering.Threshold,
		"plants":      ids,
		"environment": s.Environment,
	}
}
