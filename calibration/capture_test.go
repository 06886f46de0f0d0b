package calibration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqSampler struct {
	values []float64
	errs   []error
	i      int
}

func (s *seqSampler) ReadVoltage() (float64, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	return s.values[i%len(s.values)], nil
}

func TestCapture(t *testing.T) {
	values := []float64{2.791, 2.803, 2.786, 2.8049, 2.799}

	tests := []struct {
		name string
		mode Mode
		want float64
	}{
		{"dry keeps the maximum", ModeDry, 2.80},
		{"wet keeps the minimum", ModeWet, 2.79},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &seqSampler{values: values}
			got, err := Capture(context.Background(), s, tt.mode, CaptureOptions{Samples: len(values)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(values), s.i)
		})
	}
}

func TestCapture_DefaultSamples(t *testing.T) {
	s := &seqSampler{values: []float64{1.5}}
	_, err := Capture(context.Background(), s, ModeWet, CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSamples, s.i)
}

func TestCapture_SkipsFailedSamples(t *testing.T) {
	boom := errors.New("i2c timeout")
	s := &seqSampler{
		values: []float64{9.99, 1.234, 1.5},
		errs:   []error{boom, nil, nil},
	}

	got, err := Capture(context.Background(), s, ModeDry, CaptureOptions{Samples: 3})
	require.NoError(t, err)
	assert.Equal(t, 1.5, got)
}

func TestCapture_AllSamplesFail(t *testing.T) {
	timeout := errors.New("i2c timeout")
	nack := errors.New("i2c nack")
	s := &seqSampler{
		values: []float64{1},
		errs:   []error{timeout, timeout, nack},
	}

	_, err := Capture(context.Background(), s, ModeDry, CaptureOptions{Samples: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSamples))
	assert.True(t, errors.Is(err, nack))
	assert.False(t, errors.Is(err, timeout))
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestCapture_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &seqSampler{values: []float64{1}}
	_, err := Capture(ctx, s, ModeDry, CaptureOptions{Samples: 5, Interval: time.Hour})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.i)
}

func TestCapture_UnknownMode(t *testing.T) {
	_, err := Capture(context.Background(), &seqSampler{values: []float64{1}}, Mode("damp"), CaptureOptions{})
	assert.Error(t, err)
}
