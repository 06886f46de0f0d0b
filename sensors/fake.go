package sensors

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
)

var errFakeFailure = pkgerrors.New("simulated read failure")

// failures counts down injected failures shared by all fakes.
type failures struct {
	fmu     sync.Mutex
	pending int
	always  bool
	reads   int
}

func (f *failures) next(name string) error {
	f.fmu.Lock()
	defer f.fmu.Unlock()

	f.reads++
	if f.always {
		return Unavailable(name, errFakeFailure)
	}
	if f.pending > 0 {
		f.pending--
		return Unavailable(name, errFakeFailure)
	}
	return nil
}

// FailNext makes the next n reads fail as unavailable.
func (f *failures) FailNext(n int) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	f.pending = n
}

// SetBroken makes every read fail until it is reset.
func (f *failures) SetBroken(broken bool) {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	f.always = broken
}

// Reads returns how many reads were attempted, failed ones included.
func (f *failures) Reads() int {
	f.fmu.Lock()
	defer f.fmu.Unlock()
	return f.reads
}

type VoltageFake struct {
	failures
	name  string
	mu    sync.Mutex
	value float64
}

func NewVoltageFake(name string, value float64) *VoltageFake {
	return &VoltageFake{
		name:  name,
		value: value,
	}
}

func (s *VoltageFake) Name() string {
	return s.name
}

func (s *VoltageFake) SetValue(val float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = val
}

func (s *VoltageFake) ReadVoltage() (float64, error) {
	if err := s.next(s.name); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

type LightFake struct {
	failures
	mu    sync.Mutex
	value float64
}

func NewLightFake(lux float64) *LightFake {
	return &LightFake{
		value: lux,
	}
}

func (s *LightFake) Name() string {
	return "Light"
}

func (s *LightFake) SetValue(lux float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = lux
}

func (s *LightFake) ReadLux() (float64, error) {
	if err := s.next(s.Name()); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

type AirFake struct {
	failures
	mu          sync.Mutex
	humidity    float64
	temperature float64
}

func NewAirFake(humidity, temperature float64) *AirFake {
	return &AirFake{
		humidity:    humidity,
		temperature: temperature,
	}
}

func (s *AirFake) Name() string {
	return "Air"
}

func (s *AirFake) SetValue(humidity, temperature float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.humidity = humidity
	s.temperature = temperature
}

func (s *AirFake) ReadAir() (float64, float64, error) {
	if err := s.next(s.Name()); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.humidity, s.temperature, nil
}
