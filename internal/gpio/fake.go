package gpio

import (
	"errors"

	"github.com/sweeney/quickshifter/internal/config"
)

// FakeInput is a test double that returns scripted input levels.
type FakeInput struct {
	// Samples contains scripted levels to return.
	// Each call to Level() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Level()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Level returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Level() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Set replaces the script with a single level held indefinitely.
func (f *FakeInput) Set(level bool) {
	f.Samples = []bool{level}
	f.index = 0
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeInput) Reset() {
	f.index = 0
	f.Closed = false
}

// Write is a single recorded line write.
type Write struct {
	Line   config.Line
	Active bool
}

// FakeLines records every write.
type FakeLines struct {
	Writes []Write
	Level  [2]bool
	Closed bool

	// WriteError, if set, will be returned by Write()
	WriteError error
}

// Write records the call and updates Level.
func (f *FakeLines) Write(line config.Line, active bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, Write{line, active})
	f.Level[line] = active
	return nil
}

// Close releases both lines.
func (f *FakeLines) Close() error {
	f.Level = [2]bool{}
	f.Closed = true
	return nil
}
