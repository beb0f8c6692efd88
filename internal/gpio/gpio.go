// Package gpio drives the quick-shifter hardware: the shift sensor input,
// the ignition and injection cut lines, and the RPM pulse input.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "github.com/sweeney/quickshifter/internal/config"

// LevelReader reads a single logical input level.
type LevelReader interface {
	// Level returns true while the input is asserted.
	Level() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LineWriter drives the two cut lines.
type LineWriter interface {
	// Write asserts (cut) or releases the given line.
	Write(line config.Line, active bool) error

	// Close releases both lines, leaving them inactive.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinShift   = 17 // shift sensor, active low
	PinRPMCoil = 27 // tach pulse from the ignition coil
	PinRPMInj  = 24 // tach pulse from the injector
	PinCutIGN  = 22 // ignition kill
	PinCutINJ  = 23 // injection kill
)
