package collector

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"

	"github.com/ZamarianPatrick/lazypig-collector/config"
	"github.com/ZamarianPatrick/lazypig-collector/sensors"
)

// Hardware is the set of sensors one station polls.
type Hardware struct {
	Light sensors.LightSensor
	Air   sensors.AirSensor
	Soil  map[string]sensors.VoltageSensor

	bus i2c.BusCloser
}

// OpenHardware opens the I2C bus and sets up every sensor named in settings.
func OpenHardware(s config.Settings) (*Hardware, error) {
	bus, err := sensors.OpenBus(s.Bus)
	if err != nil {
		return nil, err
	}

	hw := &Hardware{
		Light: sensors.NewBH1750(bus, s.LightAddress),
		Soil:  make(map[string]sensors.VoltageSensor, len(s.Plants)),
		bus:   bus,
	}

	air, err := sensors.NewDHT11(s.AirPin)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	hw.Air = air

	adc, err := sensors.NewADS1115(bus, s.ADCAddress, s.ADCGain)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	for _, p := range s.Plants {
		ch, err := adc.Channel(p.Channel, fmt.Sprintf("Soil %s (AIN%d)", p.ID, p.Channel))
		if err != nil {
			_ = bus.Close()
			return nil, pkgerrors.Wrapf(err, "plant %s", p.ID)
		}
		hw.Soil[p.ID] = ch
	}

	return hw, nil
}

// Fakes gives access to the simulated sensors of a fake station.
type Fakes struct {
	Light *sensors.LightFake
	Air   *sensors.AirFake
	Soil  map[string]*sensors.VoltageFake
}

// FakeHardware simulates a station: soil probes sit at half of the default
// probe range until their value is changed.
func FakeHardware(s config.Settings) (*Hardware, *Fakes) {
	f := &Fakes{
		Light: sensors.NewLightFake(250),
		Air:   sensors.NewAirFake(45, 21),
		Soil:  make(map[string]*sensors.VoltageFake, len(s.Plants)),
	}

	hw := &Hardware{
		Light: f.Light,
		Air:   f.Air,
		Soil:  make(map[string]sensors.VoltageSensor, len(s.Plants)),
	}

	for _, p := range s.Plants {
		fake := sensors.NewVoltageFake("Soil "+p.ID, 1.65)
		f.Soil[p.ID] = fake
		hw.Soil[p.ID] = fake
	}

	return hw, f
}

func (h *Hardware) Close() error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Close()
}
