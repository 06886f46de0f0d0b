package sensors

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

const (
	DefaultBH1750Address uint16 = 0x23

	bh1750PowerOn         = 0x01
	bh1750OneTimeHighRes  = 0x20
	bh1750MeasurementTime = 180 * time.Millisecond
)

type bh1750 struct {
	dev i2c.Dev
	mu  sync.Mutex
}

func NewBH1750(bus i2c.Bus, address uint16) LightSensor {
	return &bh1750{
		dev: i2c.Dev{
			Bus:  bus,
			Addr: address,
		},
	}
}

func (s *bh1750) Name() string {
	return "Light"
}

func (s *bh1750) ReadLux() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.dev.Write([]byte{bh1750PowerOn}); err != nil {
		return 0, Unavailable(s.Name(), pkgerrors.Wrap(err, "bh1750: power on"))
	}
	if _, err := s.dev.Write([]byte{bh1750OneTimeHighRes}); err != nil {
		return 0, Unavailable(s.Name(), pkgerrors.Wrap(err, "bh1750: start measurement"))
	}

	time.Sleep(bh1750MeasurementTime)

	read := make([]byte, 2)
	if err := s.dev.Tx(nil, read); err != nil {
		return 0, Unavailable(s.Name(), pkgerrors.Wrap(err, "bh1750: read"))
	}

	lux := float64(binary.BigEndian.Uint16(read)) / 1.2
	return math.Round(lux*100) / 100, nil
}
