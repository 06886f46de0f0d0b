package calibration

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNoSamples = pkgerrors.New("no calibration sample could be read")

const (
	DefaultSamples        = 10
	DefaultSampleInterval = 500 * time.Millisecond
)

// Sampler is the probe being calibrated.
type Sampler interface {
	ReadVoltage() (float64, error)
}

// CaptureOptions controls a capture run. A zero Samples takes
// DefaultSamples; a zero Interval samples back to back.
type CaptureOptions struct {
	Samples  int
	Interval time.Duration
}

// Capture samples the probe while it is held dry or wet and returns the
// extreme: the highest voltage for dry, the lowest for wet. It does not touch
// any stored record.
func Capture(ctx context.Context, s Sampler, mode Mode, opts CaptureOptions) (float64, error) {
	if mode != ModeDry && mode != ModeWet {
		return 0, pkgerrors.Errorf("unknown calibration mode %q", mode)
	}
	if opts.Samples <= 0 {
		opts.Samples = DefaultSamples
	}

	var (
		extreme float64
		got     int
		lastErr error
	)

	for i := 0; i < opts.Samples; i++ {
		if i > 0 && opts.Interval > 0 {
			t := time.NewTimer(opts.Interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, ctx.Err()
			case <-t.C:
			}
		}

		v, err := s.ReadVoltage()
		if err != nil {
			lastErr = err
			logrus.WithError(err).WithField("sample", i+1).Warn("calibration sample failed, skipping")
			continue
		}
		logrus.Infof("detected: %.4fV", v)

		if got == 0 || (mode == ModeDry && v > extreme) || (mode == ModeWet && v < extreme) {
			extreme = v
		}
		got++
	}

	if got == 0 {
		return 0, fmt.Errorf("%w after %d attempts: %w", ErrNoSamples, opts.Samples, lastErr)
	}

	return Round2(extreme), nil
}
