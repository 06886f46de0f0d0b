package sensors

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

const (
	dhtStartLow     = 18 * time.Millisecond
	dhtEdgeTimeout  = 2 * time.Millisecond
	dhtOneThreshold = 50 * time.Microsecond
	// DHT11 needs about a second between two measurements.
	dhtMinInterval = 1100 * time.Millisecond
)

type dht11 struct {
	pin      gpio.PinIO
	mu       sync.Mutex
	lastRead time.Time
}

// NewDHT11 drives a DHT11 on the named GPIO pin, e.g. "GPIO12". The host
// drivers must be initialized first, see OpenBus.
func NewDHT11(pinName string) (AirSensor, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, pkgerrors.Errorf("gpio %s cant be found", pinName)
	}
	return &dht11{pin: pin}, nil
}

func (s *dht11) Name() string {
	return "Air"
}

func (s *dht11) ReadAir() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wait := dhtMinInterval - time.Since(s.lastRead); wait > 0 {
		time.Sleep(wait)
	}
	defer func() { s.lastRead = time.Now() }()

	data, err := s.transfer()
	if err != nil {
		return 0, 0, Unavailable(s.Name(), err)
	}

	humidity, temperature, err := DecodeDHT11(data)
	if err != nil {
		return 0, 0, Unavailable(s.Name(), err)
	}
	return humidity, temperature, nil
}

// transfer sends the start signal and times the 40 data bits that follow.
func (s *dht11) transfer() ([5]byte, error) {
	var data [5]byte

	if err := s.pin.Out(gpio.Low); err != nil {
		return data, pkgerrors.Wrap(err, "dht11: drive start signal")
	}
	time.Sleep(dhtStartLow)

	if err := s.pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return data, pkgerrors.Wrap(err, "dht11: release line")
	}

	// Sensor response: low, high, then 40 bits of (low, high) pulses. The
	// length of each high pulse encodes the bit.
	for i := 0; i < 3; i++ {
		if !s.pin.WaitForEdge(dhtEdgeTimeout) {
			return data, pkgerrors.New("dht11: no response")
		}
	}

	for bit := 0; bit < 40; bit++ {
		if !s.pin.WaitForEdge(dhtEdgeTimeout) {
			return data, pkgerrors.Errorf("dht11: timeout at bit %d", bit)
		}
		rise := time.Now()
		if !s.pin.WaitForEdge(dhtEdgeTimeout) {
			return data, pkgerrors.Errorf("dht11: timeout at bit %d", bit)
		}
		if time.Since(rise) > dhtOneThreshold {
			data[bit/8] |= 1 << (7 - uint(bit%8))
		}
	}

	return data, nil
}

// DecodeDHT11 checks the checksum of a raw frame and returns humidity and
// temperature.
func DecodeDHT11(data [5]byte) (float64, float64, error) {
	sum := data[0] + data[1] + data[2] + data[3]
	if sum != data[4] {
		return 0, 0, pkgerrors.Errorf("dht11: checksum mismatch (got 0x%02X, want 0x%02X)", data[4], sum)
	}

	humidity := float64(data[0]) + float64(data[1])/10
	temperature := float64(data[2]&0x7F) + float64(data[3])/10
	if data[2]&0x80 != 0 {
		temperature = -temperature
	}

	if humidity > 100 {
		return 0, 0, pkgerrors.Errorf("dht11: humidity out of range: %.1f", humidity)
	}

	return humidity, temperature, nil
}
