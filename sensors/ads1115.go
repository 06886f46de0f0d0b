package sensors

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

const (
	DefaultADS1115Address uint16 = 0x48

	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	adsConfigOsSingle     uint16 = 0x8000
	adsConfigModeSingle   uint16 = 0x0100
	adsConfigDataRate128  uint16 = 0x0080
	adsConfigCompQueueOff uint16 = 0x0003

	adsConvTimeout  = 50 * time.Millisecond
	adsConvPollWait = time.Millisecond
)

// Gain is the ADS1115 programmable gain setting.
type Gain string

const (
	GainTwoThirds Gain = "2/3"
	GainOne       Gain = "1"
	GainTwo       Gain = "2"
	GainFour      Gain = "4"
	GainEight     Gain = "8"
	GainSixteen   Gain = "16"
)

var gains = map[Gain]struct {
	bits      uint16
	fullScale float64
}{
	GainTwoThirds: {0x0000, 6.144},
	GainOne:       {0x0200, 4.096},
	GainTwo:       {0x0400, 2.048},
	GainFour:      {0x0600, 1.024},
	GainEight:     {0x0800, 0.512},
	GainSixteen:   {0x0A00, 0.256},
}

func (g Gain) Valid() bool {
	_, ok := gains[g]
	return ok
}

// ADS1115 is one 4-channel ADC on an I2C bus. Channels share the device, so
// conversions are serialized.
type ADS1115 struct {
	dev  i2c.Dev
	gain Gain
	mu   sync.Mutex
}

func NewADS1115(bus i2c.Bus, address uint16, gain Gain) (*ADS1115, error) {
	if gain == "" {
		gain = GainOne
	}
	if !gain.Valid() {
		return nil, pkgerrors.Errorf("unknown ads1115 gain %q", gain)
	}

	return &ADS1115{
		dev: i2c.Dev{
			Bus:  bus,
			Addr: address,
		},
		gain: gain,
	}, nil
}

// Channel returns single-ended input AINn against GND.
func (a *ADS1115) Channel(n int, name string) (VoltageSensor, error) {
	if n < 0 || n > 3 {
		return nil, pkgerrors.Errorf("ads1115 has no channel %d", n)
	}
	if name == "" {
		name = fmt.Sprintf("ADS1115 AIN%d", n)
	}
	return &adsChannel{adc: a, channel: n, name: name}, nil
}

func (a *ADS1115) read(channel int) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g := gains[a.gain]
	mux := uint16(0x4000) + uint16(channel)<<12

	config := adsConfigOsSingle |
		adsConfigModeSingle |
		adsConfigDataRate128 |
		adsConfigCompQueueOff |
		mux |
		g.bits

	if _, err := a.dev.Write([]byte{adsRegConfig, byte(config >> 8), byte(config)}); err != nil {
		return 0, pkgerrors.Wrap(err, "ads1115: write config")
	}

	cfg := make([]byte, 2)
	deadline := time.Now().Add(adsConvTimeout)
	for {
		time.Sleep(adsConvPollWait)
		if err := a.dev.Tx([]byte{adsRegConfig}, cfg); err != nil {
			return 0, pkgerrors.Wrap(err, "ads1115: read config")
		}
		if binary.BigEndian.Uint16(cfg)&adsConfigOsSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, pkgerrors.Errorf("ads1115: conversion timeout (cfg=0x%04X)", binary.BigEndian.Uint16(cfg))
		}
	}

	b := make([]byte, 2)
	if err := a.dev.Tx([]byte{adsRegConversion}, b); err != nil {
		return 0, pkgerrors.Wrap(err, "ads1115: read conversion")
	}

	return CountsToVolts(int16(binary.BigEndian.Uint16(b)), a.gain), nil
}

// CountsToVolts scales a raw conversion by the full-scale range of gain.
func CountsToVolts(raw int16, gain Gain) float64 {
	g, ok := gains[gain]
	if !ok {
		return math.NaN()
	}
	return float64(raw) / 32768.0 * g.fullScale
}

type adsChannel struct {
	adc     *ADS1115
	channel int
	name    string
}

func (c *adsChannel) Name() string {
	return c.name
}

func (c *adsChannel) ReadVoltage() (float64, error) {
	v, err := c.adc.read(c.channel)
	if err != nil {
		return 0, Unavailable(c.name, err)
	}
	return v, nil
}
