package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ZamarianPatrick/lazypig-collector/calibration"
	"github.com/ZamarianPatrick/lazypig-collector/config"
	"github.com/ZamarianPatrick/lazypig-collector/datalog"
	"github.com/ZamarianPatrick/lazypig-collector/retry"
	"github.com/ZamarianPatrick/lazypig-collector/soil"
)

type Controller interface {
	// Read polls every sensor once and returns one entry per plant without
	// logging them.
	Read(ctx context.Context) []*datalog.Entry
	// Tick reads and logs one round of entries.
	Tick(ctx context.Context) []*datalog.Entry
	// Run ticks on every interval boundary until ctx is cancelled.
	Run(ctx context.Context) error
	Plants() []PlantStatus
}

// PlantStatus is a snapshot of one plant's calibration state.
type PlantStatus struct {
	ID         string   `json:"id"`
	Channel    int      `json:"channel"`
	Calibrated bool     `json:"calibrated"`
	WetVoltage float64  `json:"wetVoltage"`
	DryVoltage float64  `json:"dryVoltage"`
	LastLevel  *float64 `json:"lastLevel"`
	Disabled   string   `json:"disabled,omitempty"`
}

type plant struct {
	setting config.PlantSetting
	probe   *soil.Probe
}

type controller struct {
	settings config.Settings
	hw       *Hardware
	sink     datalog.Sink
	reader   *soil.Reader
	policy   retry.Policy
	plants   []*plant
	now      func() time.Time

	mu        sync.RWMutex
	snapshots map[string]PlantStatus
}

// NewController loads the calibration of every plant and wires the sensors
// of hw to it. A plant whose calibration is corrupt is disabled, the others
// keep working.
func NewController(s config.Settings, hw *Hardware, store calibration.Store, sink datalog.Sink) (Controller, error) {
	if hw == nil || hw.Light == nil || hw.Air == nil {
		return nil, pkgerrors.New("hardware is not set up")
	}

	policy := s.RetryPolicy()
	c := &controller{
		settings:  s,
		hw:        hw,
		sink:      sink,
		reader:    soil.NewReader(soil.NewNormalizer(store, s.SoilOptions()), policy),
		policy:    policy,
		now:       time.Now,
		snapshots: make(map[string]PlantStatus, len(s.Plants)),
	}

	for _, ps := range s.Plants {
		sensor, ok := hw.Soil[ps.ID]
		if !ok {
			return nil, pkgerrors.Errorf("no soil sensor for plant %s", ps.ID)
		}

		probe := &soil.Probe{
			ID:     ps.ID,
			Sensor: sensor,
		}

		rec, err := store.Load(ps.ID)
		if err != nil {
			if !errors.Is(err, calibration.ErrCorrupt) {
				return nil, pkgerrors.Wrapf(err, "failed to load calibration of %s", ps.ID)
			}
			logrus.WithError(err).WithField("plant", ps.ID).Error("calibration is corrupt, plant disabled until recalibrated")
			probe.Disabled = err
		} else {
			probe.Record = rec
			log := logrus.WithField("plant", ps.ID)
			if rec.Calibrated() {
				log.Infof("calibration loaded: %s", rec)
			} else {
				log.Warnf("plant is not calibrated, readings are approximate: %s", rec)
			}
		}

		p := &plant{setting: ps, probe: probe}
		c.plants = append(c.plants, p)
		c.snapshot(p)
	}

	return c, nil
}

func (c *controller) snapshot(p *plant) {
	st := PlantStatus{
		ID:      p.setting.ID,
		Channel: p.setting.Channel,
	}
	if p.probe.Disabled != nil {
		st.Disabled = p.probe.Disabled.Error()
	}
	if rec := p.probe.Record; rec != nil {
		rec = rec.Clone()
		st.Calibrated = rec.Calibrated()
		st.WetVoltage = rec.WetVoltage
		st.DryVoltage = rec.DryVoltage
		st.LastLevel = rec.LastLevel
	}

	c.mu.Lock()
	c.snapshots[st.ID] = st
	c.mu.Unlock()
}

func (c *controller) Plants() []PlantStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PlantStatus, 0, len(c.plants))
	for _, p := range c.plants {
		out = append(out, c.snapshots[p.setting.ID])
	}
	return out
}

func (c *controller) readLight(ctx context.Context) *float64 {
	var lux float64
	err := c.policy.Do(ctx, "read light", func() error {
		v, err := c.hw.Light.ReadLux()
		lux = v
		return err
	})
	if err != nil {
		logrus.WithError(err).Error("light reading unavailable")
		return nil
	}
	logrus.Infof("light OK! %.2f", lux)
	return &lux
}

func (c *controller) readAir(ctx context.Context) (*float64, *float64) {
	var humidity, temperature float64
	err := c.policy.Do(ctx, "read air", func() error {
		h, t, err := c.hw.Air.ReadAir()
		humidity, temperature = h, t
		return err
	})
	if err != nil {
		logrus.WithError(err).Error("air reading unavailable")
		return nil, nil
	}
	logrus.Infof("air OK! %.1f%%, %.1fC", humidity, temperature)
	return &humidity, &temperature
}

func (c *controller) Read(ctx context.Context) []*datalog.Entry {
	tickID := uuid.New().String()
	takenAt := c.now()

	logrus.WithField("tick", tickID).Info("reading sensors")

	lux := c.readLight(ctx)
	humidity, temperature := c.readAir(ctx)

	entries := make([]*datalog.Entry, 0, len(c.plants))
	for _, p := range c.plants {
		reading := c.reader.Read(ctx, p.probe)
		c.snapshot(p)

		e := &datalog.Entry{
			TickID:         tickID,
			PlantID:        p.setting.ID,
			TakenAt:        takenAt,
			PlantOrder:     p.setting.Taxonomy.Order,
			PlantFamily:    p.setting.Taxonomy.Family,
			PlantSubfamily: p.setting.Taxonomy.Subfamily,
			PlantGenus:     p.setting.Taxonomy.Genus,
			Environment:    c.settings.Environment,
			Lux:            lux,
			Temperature:    temperature,
			Humidity:       humidity,
		}
		if reading.Available {
			moisture := reading.MoisturePercent
			watered := reading.WasWatered
			ml := reading.VolumeML
			e.SoilMoisture = &moisture
			e.WasWatered = &watered
			e.ML = &ml
		}
		entries = append(entries, e)
	}

	return entries
}

func (c *controller) Tick(ctx context.Context) []*datalog.Entry {
	entries := c.Read(ctx)
	if c.sink == nil {
		return entries
	}

	for _, e := range entries {
		if err := c.sink.Write(e); err != nil {
			logrus.WithError(err).WithField("plant", e.PlantID).Error("failed to log entry")
			continue
		}
		logrus.WithField("plant", e.PlantID).Info("logging OK")
	}

	return entries
}

// Run ticks right away and then on every interval boundary. A tick that is
// in progress when ctx is cancelled runs to the end.
func (c *controller) Run(ctx context.Context) error {
	logrus.WithFields(c.settings.LogrusFields()).Info("collector started")

	for {
		c.Tick(context.WithoutCancel(ctx))

		wait := NextInterval(c.now(), c.settings.Interval)
		logrus.Infof("next interval in %s", wait.Round(time.Second))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			logrus.Info("collector stopped")
			return nil
		case <-t.C:
		}
	}
}

// NextInterval returns the time until the next multiple of interval on the
// wall clock since local midnight, e.g. the next xx:00 or xx:30 for 30
// minutes. Wall times are resolved in now's location, so a DST change
// between now and the next tick shortens or stretches the wait.
func NextInterval(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}

	y, m, d := now.Date()
	loc := now.Location()
	at := func(k int64) time.Time {
		return time.Date(y, m, d, 0, 0, 0, int(time.Duration(k)*interval), loc)
	}

	wall := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond())
	k := int64(wall/interval) + 1

	next := at(k)
	if !next.After(now) {
		// repeated wall hour, take the occurrence in now's offset
		_, nowOffset := now.Zone()
		_, nextOffset := next.Zone()
		next = next.Add(time.Duration(nextOffset-nowOffset) * time.Second)
	}
	for !next.After(now) {
		k++
		next = at(k)
	}
	return next.Sub(now)
}
