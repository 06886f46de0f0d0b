package soil

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*calibration.Record
	saves   int
	err     error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*calibration.Record{}}
}

func (s *memStore) Load(id string) (*calibration.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return r.Clone(), nil
	}
	return calibration.DefaultRecord(), nil
}

func (s *memStore) Save(id string, r *calibration.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return s.err
	}
	s.records[id] = r.Clone()
	return nil
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func lily(last float64) *calibration.Record {
	return &calibration.Record{
		WetVoltage: 1.10,
		DryVoltage: 2.80,
		LastLevel:  &last,
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     float64
		last    float64
		want    Reading
		wantLvl float64
	}{
		{
			name:    "probe in water",
			raw:     1.10,
			last:    40,
			want:    Reading{Available: true, MoisturePercent: 100, WasWatered: true, VolumeML: 1000},
			wantLvl: 100,
		},
		{
			name:    "probe in dry air",
			raw:     2.80,
			last:    40,
			want:    Reading{Available: true, MoisturePercent: 0, WasWatered: false, VolumeML: 0},
			wantLvl: 0,
		},
		{
			name:    "small rise is not a watering",
			raw:     2.086,
			last:    40,
			want:    Reading{Available: true, MoisturePercent: 42, WasWatered: false, VolumeML: 0},
			wantLvl: 42,
		},
		{
			name:    "wetter than the wet bound",
			raw:     0.5,
			last:    100,
			want:    Reading{Available: true, MoisturePercent: 100, WasWatered: false, VolumeML: 0},
			wantLvl: 100,
		},
		{
			name:    "drier than the dry bound",
			raw:     3.3,
			last:    10,
			want:    Reading{Available: true, MoisturePercent: 0, WasWatered: false, VolumeML: 0},
			wantLvl: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			n := NewNormalizer(store, DefaultOptions())
			rec := lily(tt.last)

			got, err := n.Normalize("peace-lily-1", tt.raw, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLvl, rec.Baseline())

			saved, err := store.Load("peace-lily-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantLvl, saved.Baseline())
			assert.Equal(t, 1, store.Saves())
		})
	}
}

func TestNormalize_Bounds(t *testing.T) {
	n := NewNormalizer(newMemStore(), DefaultOptions())
	rec := lily(0)

	for raw := -1.0; raw <= 5.0; raw += 0.013 {
		got, err := n.Normalize("p", raw, rec)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.MoisturePercent, 0.0, "raw=%v", raw)
		assert.LessOrEqual(t, got.MoisturePercent, 100.0, "raw=%v", raw)
		assert.Equal(t, calibration.Round2(got.MoisturePercent), got.MoisturePercent, "raw=%v", raw)
		if got.WasWatered {
			assert.Equal(t, DefaultMLPerWatering, got.VolumeML)
		} else {
			assert.Zero(t, got.VolumeML)
		}
	}
}

func TestNormalize_Clamped(t *testing.T) {
	n := NewNormalizer(newMemStore(), DefaultOptions())

	for _, raw := range []float64{-10, 0, 1.10, 1.0999} {
		got, err := n.Normalize("p", raw, lily(100))
		require.NoError(t, err)
		assert.Equal(t, 100.0, got.MoisturePercent, "raw=%v", raw)
		assert.False(t, got.WasWatered)
	}
	for _, raw := range []float64{2.80, 2.8001, 10} {
		got, err := n.Normalize("p", raw, lily(0))
		require.NoError(t, err)
		assert.Equal(t, 0.0, got.MoisturePercent, "raw=%v", raw)
	}
}

func TestNormalize_WateringThreshold(t *testing.T) {
	n := NewNormalizer(newMemStore(), DefaultOptions())

	// 2.80 - 0.017*k volts is k percent on a 1.10..2.80 probe.
	tests := []struct {
		raw     float64
		watered bool
	}{
		{2.80 - 0.017*44, false},
		{2.80 - 0.017*45, false},
		{2.80 - 0.017*45.5, true},
		{2.80 - 0.017*60, true},
	}

	for _, tt := range tests {
		got, err := n.Normalize("p", tt.raw, lily(40))
		require.NoError(t, err)
		assert.Equal(t, tt.watered, got.WasWatered, "level=%v", got.MoisturePercent)
	}
}

func TestNormalize_Uncalibrated(t *testing.T) {
	n := NewNormalizer(newMemStore(), DefaultOptions())

	got, err := n.Normalize("p", 1.65, calibration.DefaultRecord())
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.MoisturePercent)
	assert.False(t, got.Calibrated)
	assert.True(t, got.WasWatered)
}

func TestNormalize_CustomOptions(t *testing.T) {
	n := NewNormalizer(newMemStore(), Options{WaterThreshold: 10, MLPerWatering: 250})

	got, err := n.Normalize("p", 1.10, lily(40))
	require.NoError(t, err)
	assert.Equal(t, 250, got.VolumeML)

	got, err = n.Normalize("p", 2.80-0.017*49, lily(40))
	require.NoError(t, err)
	assert.False(t, got.WasWatered)
}

func TestNormalize_PersistFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")
	n := NewNormalizer(store, DefaultOptions())
	rec := lily(40)

	got, err := n.Normalize("p", 1.10, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersist))
	assert.Equal(t, Reading{Available: true, MoisturePercent: 100, WasWatered: true, VolumeML: 1000}, got)
	assert.Equal(t, 100.0, rec.Baseline())
}

func TestNormalize_InvalidInput(t *testing.T) {
	store := newMemStore()
	n := NewNormalizer(store, DefaultOptions())

	_, err := n.Normalize("p", 2.0, &calibration.Record{WetVoltage: 2.8, DryVoltage: 1.1})
	assert.True(t, errors.Is(err, calibration.ErrInvalidBounds))

	got, err := n.Normalize("p", math.NaN(), lily(40))
	assert.Error(t, err)
	assert.Equal(t, Unavailable(), got)
	assert.Zero(t, store.Saves())
}

func TestPercent(t *testing.T) {
	p, err := Percent(1.95, lily(0))
	require.NoError(t, err)
	assert.Equal(t, 50.0, p)
}
