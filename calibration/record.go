// Package calibration persists the two-point calibration of each soil
// moisture probe together with the last normalized level it reported.
//
// Raw probe voltage falls as the soil gets wetter. A record therefore keeps
// the wet (minimum) voltage under "min_value" and the dry (maximum) voltage
// under "max_value"; 100% moisture sits at min_value and 0% at max_value.
package calibration

import (
	"fmt"
	"math"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

const (
	// DefaultWetVoltage and DefaultDryVoltage span the probe supply range, so
	// an uncalibrated probe sitting at half supply reads as 50%.
	DefaultWetVoltage = 0.0
	DefaultDryVoltage = 3.3
)

var (
	ErrInvalidBounds = pkgerrors.New("dry voltage must be greater than wet voltage")
	ErrInvalidLevel  = pkgerrors.New("last level must be between 0 and 100")
)

// Record is the persisted calibration of one probe.
type Record struct {
	WetVoltage   float64    `json:"min_value"`
	DryVoltage   float64    `json:"max_value"`
	LastLevel    *float64   `json:"last_level"`
	CalibratedAt *time.Time `json:"calibrated_at"`

	// capture times of the single bounds, so the two bounds may come
	// from separate runs
	DryCapturedAt *time.Time `json:"dry_captured_at"`
	WetCapturedAt *time.Time `json:"wet_captured_at"`
}

// DefaultRecord is returned for probes that were never calibrated.
func DefaultRecord() *Record {
	level := 0.0
	return &Record{
		WetVoltage: DefaultWetVoltage,
		DryVoltage: DefaultDryVoltage,
		LastLevel:  &level,
	}
}

func (r *Record) Validate() error {
	if math.IsNaN(r.WetVoltage) || math.IsNaN(r.DryVoltage) || r.DryVoltage <= r.WetVoltage {
		return pkgerrors.Wrapf(ErrInvalidBounds, "wet=%.2fV dry=%.2fV", r.WetVoltage, r.DryVoltage)
	}
	if r.LastLevel != nil && (*r.LastLevel < 0 || *r.LastLevel > 100 || math.IsNaN(*r.LastLevel)) {
		return pkgerrors.Wrapf(ErrInvalidLevel, "last level %.2f", *r.LastLevel)
	}
	return nil
}

// Calibrated reports whether both bounds were captured and saved.
func (r *Record) Calibrated() bool {
	return r.CalibratedAt != nil
}

// Baseline is the level the next reading is compared against.
func (r *Record) Baseline() float64 {
	if r.LastLevel == nil {
		return 0
	}
	return *r.LastLevel
}

func (r *Record) SetLastLevel(level float64) {
	r.LastLevel = &level
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.LastLevel != nil {
		level := *r.LastLevel
		c.LastLevel = &level
	}
	c.CalibratedAt = cloneTime(r.CalibratedAt)
	c.DryCapturedAt = cloneTime(r.DryCapturedAt)
	c.WetCapturedAt = cloneTime(r.WetCapturedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Apply merges a bound captured at now into the record.
func (r *Record) Apply(mode Mode, value float64, now time.Time) {
	at := now.UTC().Round(0)
	switch mode {
	case ModeDry:
		r.DryVoltage = value
		r.DryCapturedAt = &at
	case ModeWet:
		r.WetVoltage = value
		r.WetCapturedAt = &at
	}
}

// Captured reports whether both bounds have been captured, in one run or
// in separate ones.
func (r *Record) Captured() bool {
	return r.DryCapturedAt != nil && r.WetCapturedAt != nil
}

// MarkCalibrated stamps a record whose bounds both come from a capture run.
func (r *Record) MarkCalibrated(now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	t := now.UTC().Round(0)
	r.CalibratedAt = &t
	return nil
}

func (r *Record) String() string {
	level := "none"
	if r.LastLevel != nil {
		level = fmt.Sprintf("%.2f%%", *r.LastLevel)
	}
	state := "uncalibrated"
	if r.Calibrated() {
		state = "calibrated " + r.CalibratedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("wet=%.2fV dry=%.2fV last=%s (%s)", r.WetVoltage, r.DryVoltage, level, state)
}

// Mode selects which bound a capture run measures.
type Mode string

const (
	ModeDry Mode = "dry"
	ModeWet Mode = "wet"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDry:
		return ModeDry, nil
	case ModeWet:
		return ModeWet, nil
	default:
		return "", pkgerrors.Errorf("unknown calibration mode %q, expected dry or wet", s)
	}
}

// Round2 rounds v to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
