package sensors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// ErrUnavailable wraps every transient read failure. Callers retry on it.
var ErrUnavailable = pkgerrors.New("sensor unavailable")

type Sensor interface {
	Name() string
}

// VoltageSensor is one analog input, e.g. a capacitive soil probe.
type VoltageSensor interface {
	Sensor
	ReadVoltage() (float64, error)
}

type LightSensor interface {
	Sensor
	ReadLux() (float64, error)
}

type AirSensor interface {
	Sensor
	// ReadAir returns relative humidity in percent and temperature in °C.
	ReadAir() (humidity float64, temperature float64, err error)
}

type unavailableError struct {
	sensor string
	err    error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.sensor, ErrUnavailable, e.err)
}

func (e *unavailableError) Unwrap() error { return e.err }

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable marks err as a transient failure of the named sensor.
func Unavailable(sensor string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{sensor: sensor, err: err}
}

// OpenBus initializes the host drivers and opens the named I2C bus.
func OpenBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to initialize host drivers")
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open i2c bus %q", name)
	}

	return bus, nil
}
