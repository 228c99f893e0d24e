// Package gpio provides the digital lines the controller drives, with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation runs on a virtual clock so tests need no hardware.
package gpio

// NumDetect is the number of sense lines (and of hit outputs).
const NumDetect = 3

// Input is a sense line.
type Input interface {
	// Value reports whether the line is currently high.
	Value() (bool, error)
}

// Output is a driven line. High means active.
type Output interface {
	Set(high bool) error
}

// Lines is the full set of lines handed to the controller at startup.
type Lines struct {
	Detect [NumDetect]Input
	Hit    [NumDetect]Output
	LED    Output
}

// EdgeFunc is called with the index of a sense line (0-based) each time it
// sees a rising edge. It runs on the event delivery goroutine and must not block.
type EdgeFunc func(line int)

// Pins selects the chip and line offsets.
type Pins struct {
	Chip   string
	Detect [NumDetect]int
	Hit    [NumDetect]int
	LED    int
}

// Default line offsets.
const (
	DefaultChip = "gpiochip0"

	DefaultPinDetect1 = 3
	DefaultPinDetect2 = 4
	DefaultPinDetect3 = 5

	DefaultPinHit1 = 12 // driven for DETECT_2
	DefaultPinHit2 = 13 // driven for DETECT_1
	DefaultPinHit3 = 14 // driven for DETECT_3

	DefaultPinLED = 25
)

// DefaultPins returns the factory wiring.
func DefaultPins() Pins {
	return Pins{
		Chip:   DefaultChip,
		Detect: [NumDetect]int{DefaultPinDetect1, DefaultPinDetect2, DefaultPinDetect3},
		Hit:    [NumDetect]int{DefaultPinHit1, DefaultPinHit2, DefaultPinHit3},
		LED:    DefaultPinLED,
	}
}
