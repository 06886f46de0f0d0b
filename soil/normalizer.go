// Package soil turns raw probe voltages into moisture readings and detects
// watering events against the last stored level.
package soil

import (
	"math"

	pkgerrors "github.com/pkg/errors"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
)

const (
	// DefaultWaterThreshold is the rise in percentage points over the last
	// level that counts as a watering. A single noisy sample can trigger it.
	DefaultWaterThreshold = 5.0
	// DefaultMLPerWatering is a placeholder volume, not a metered one.
	DefaultMLPerWatering = 1000
)

var ErrPersist = pkgerrors.New("failed to persist last level")

// Reading is the result of one soil read. A reading that is not Available
// carries no values and is logged as empty cells.
type Reading struct {
	Available       bool    `json:"available"`
	MoisturePercent float64 `json:"moisturePercent"`
	WasWatered      bool    `json:"wasWatered"`
	VolumeML        int     `json:"volumeMl"`
	// Calibrated is false while the probe runs on default bounds.
	Calibrated bool `json:"calibrated"`
}

// Unavailable is the explicit "no reading" result.
func Unavailable() Reading {
	return Reading{}
}

// Percent maps a voltage onto 0..100, with 100 at the wet bound and 0 at the
// dry bound. Values beyond either bound are clamped.
func Percent(raw float64, rec *calibration.Record) (float64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, pkgerrors.Errorf("invalid voltage %v", raw)
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	p := (rec.DryVoltage - raw) / (rec.DryVoltage - rec.WetVoltage) * 100
	switch {
	case p >= 100:
		return 100.0, nil
	case p <= 0:
		return 0.0, nil
	default:
		return calibration.Round2(p), nil
	}
}

type Options struct {
	WaterThreshold float64
	MLPerWatering  int
}

func DefaultOptions() Options {
	return Options{
		WaterThreshold: DefaultWaterThreshold,
		MLPerWatering:  DefaultMLPerWatering,
	}
}

type Normalizer struct {
	store calibration.Store
	opts  Options
}

func NewNormalizer(store calibration.Store, opts Options) *Normalizer {
	return &Normalizer{
		store: store,
		opts:  opts,
	}
}

// Normalize converts raw into a Reading and stores the new level as the
// baseline of the next call before returning. When saving fails the reading
// is still returned, along with an ErrPersist error, and rec keeps the new
// level.
func (n *Normalizer) Normalize(id string, raw float64, rec *calibration.Record) (Reading, error) {
	percent, err := Percent(raw, rec)
	if err != nil {
		return Unavailable(), pkgerrors.Wrapf(err, "failed to normalize %s", id)
	}

	watered := percent > rec.Baseline()+n.opts.WaterThreshold
	ml := 0
	if watered {
		ml = n.opts.MLPerWatering
	}

	reading := Reading{
		Available:       true,
		MoisturePercent: percent,
		WasWatered:      watered,
		VolumeML:        ml,
		Calibrated:      rec.Calibrated(),
	}

	rec.SetLastLevel(percent)
	if err := n.store.Save(id, rec); err != nil {
		return reading, pkgerrors.Wrapf(ErrPersist, "%s: %v", id, err)
	}

	return reading, nil
}
