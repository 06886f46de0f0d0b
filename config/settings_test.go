package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZamarianPatrick/lazypig-collector/sensors"
)

func TestLoad_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "collector.yml")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), again)
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yml")
	content := `
interval: 10m
retry:
  maxAttempts: 5
  wait: 1500ms
environment: greenhouse
plants:
  - id: monstera
    channel: 3
    taxonomy:
      order: Alismatales
      family: Araceae
      genus: Monstera
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, s.Interval)
	assert.Equal(t, 5, s.Retry.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, s.Retry.Wait)
	assert.Equal(t, "greenhouse", s.Environment)
	require.Len(t, s.Plants, 1)
	assert.Equal(t, "monstera", s.Plants[0].ID)
	assert.Equal(t, 3, s.Plants[0].Channel)
	assert.Equal(t, "Monstera", s.Plants[0].Taxonomy.Genus)

	// untouched keys keep their defaults
	d := Default()
	assert.Equal(t, d.Bus, s.Bus)
	assert.Equal(t, d.Watering, s.Watering)
	assert.Equal(t, d.Capture, s.Capture)
	assert.Equal(t, d.Output, s.Output)
	assert.Equal(t, sensors.GainOne, s.ADCGain)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "intervall: 10m\nplants: [{id: a}]\n"},
		{"bad duration", "interval: soon\nplants: [{id: a}]\n"},
		{"no plants", "interval: 10m\n"},
		{"duplicate plant", "plants: [{id: a}, {id: a, channel: 1}]\n"},
		{"bad channel", "plants: [{id: a, channel: 4}]\n"},
		{"empty id", "plants: [{channel: 1}]\n"},
		{"zero interval", "interval: 0s\nplants: [{id: a}]\n"},
		{"no attempts", "retry: {maxAttempts: 0}\nplants: [{id: a}]\n"},
		{"negative threshold", "watering: {threshold: -1}\nplants: [{id: a}]\n"},
		{"bad gain", "adcGain: \"3\"\nplants: [{id: a}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "collector.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSettings_Helpers(t *testing.T) {
	s := Default()

	p, ok := s.Plant("peace-lily-2")
	require.True(t, ok)
	assert.Equal(t, 1, p.Channel)
	_, ok = s.Plant("ficus")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{
		"peace-lily-1": "calibration_data_1.json",
		"peace-lily-2": "calibration_data_2.json",
	}, s.CalibrationFiles())

	policy := s.RetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 3*time.Second, policy.Wait)

	opts := s.SoilOptions()
	assert.Equal(t, 5.0, opts.WaterThreshold)
	assert.Equal(t, 1000, opts.MLPerWatering)

	capture := s.CaptureOptions()
	assert.Equal(t, 10, capture.Samples)
	assert.Equal(t, 500*time.Millisecond, capture.Interval)

	fields := s.LogrusFields()
	assert.Equal(t, []string{"peace-lily-1", "peace-lily-2"}, fields["plants"])
	assert.Equal(t, "30m0s", fields["interval"])
}
