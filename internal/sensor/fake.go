package sensor

import (
	"errors"
	"sort"
)

// Reading is a scripted observation for FakeBus.
type Reading struct {
	Celsius float64
	Ready   bool
}

// FakeBus is a test double that returns scripted readings.
type FakeBus struct {
	// IDs are the attached thermometers.
	IDs []string

	// Samples contains scripted readings. Each call to Read consumes the
	// next one; the last is repeated once exhausted.
	Samples []Reading

	// index tracks current position in Samples
	index int

	// Reads counts calls to Read.
	Reads int

	// EnumerateError, if set, is returned by Enumerate.
	EnumerateError error

	// ReadError, if set, is returned by Read.
	ReadError error
}

// NewFakeBus creates a FakeBus with one thermometer and the given samples.
func NewFakeBus(samples []Reading) *FakeBus {
	return &FakeBus{IDs: []string{"28-000000000001"}, Samples: samples}
}

// Enumerate returns the configured IDs, sorted.
func (f *FakeBus) Enumerate() ([]string, error) {
	if f.EnumerateError != nil {
		return nil, f.EnumerateError
	}
	ids := append([]string(nil), f.IDs...)
	sort.Strings(ids)
	return ids, nil
}

// Read returns the next scripted sample.
func (f *FakeBus) Read(id string) (float64, bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return 0, false, f.ReadError
	}

	known := false
	for _, candidate := range f.IDs {
		if candidate == id {
			known = true
			break
		}
	}
	if !known {
		return 0, false, ErrDeviceMissing
	}

	if len(f.Samples) == 0 {
		return 0, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample.Celsius, sample.Ready, nil
}

// FakeLoader records module loads.
type FakeLoader struct {
	Loaded []string
	Err    error
}

// Load records name, or returns Err.
func (f *FakeLoader) Load(name string) error {
	if f.Err != nil {
		return f.Err
	}
	f.Loaded = append(f.Loaded, name)
	return nil
}
