package soil

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
	"github.com/ZamarianPatrick/lazypig-collector/retry"
	"github.com/ZamarianPatrick/lazypig-collector/sensors"
)

// Probe binds a plant to its soil sensor and calibration record.
type Probe struct {
	ID     string
	Sensor sensors.VoltageSensor
	Record *calibration.Record
	// Disabled is set when the calibration could not be loaded. A disabled
	// probe is skipped until it is recalibrated.
	Disabled error
}

// Reader acquires a voltage under a retry policy and normalizes it.
type Reader struct {
	normalizer *Normalizer
	policy     retry.Policy
}

func NewReader(n *Normalizer, policy retry.Policy) *Reader {
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool {
			return errors.Is(err, sensors.ErrUnavailable)
		}
	}
	return &Reader{
		normalizer: n,
		policy:     policy,
	}
}

// Read never fails: every problem is logged and turned into Unavailable, so
// one broken probe cannot hold up the others.
func (r *Reader) Read(ctx context.Context, p *Probe) Reading {
	log := logrus.WithField("plant", p.ID)

	if p.Disabled != nil {
		log.WithError(p.Disabled).Error("soil probe disabled, recalibrate it")
		return Unavailable()
	}
	if p.Record == nil || p.Sensor == nil {
		log.Error("soil probe is not set up")
		return Unavailable()
	}

	var voltage float64
	err := r.policy.Do(ctx, "read soil "+p.ID, func() error {
		v, err := p.Sensor.ReadVoltage()
		if err != nil {
			return err
		}
		voltage = v
		return nil
	})
	if err != nil {
		log.WithError(err).Error("!!! impossible to retrieve soil moisture !!!")
		return Unavailable()
	}

	reading, err := r.normalizer.Normalize(p.ID, voltage, p.Record)
	if err != nil {
		if !errors.Is(err, ErrPersist) {
			log.WithError(err).WithField("voltage", voltage).Error("failed to normalize soil reading")
			return Unavailable()
		}
		log.WithError(err).Error("soil reading taken but baseline was not saved")
	}

	log.WithFields(logrus.Fields{
		"voltage":    voltage,
		"soil":       reading.MoisturePercent,
		"watered":    reading.WasWatered,
		"ml":         reading.VolumeML,
		"calibrated": reading.Calibrated,
	}).Info("soil OK")

	return reading
}
