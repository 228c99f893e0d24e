// Package trigger contains the reflex pipeline: edge capture, debounce
// confirmation, cross-routed pulse output and the dispatch loop.
// Hardware is reached only through gpio.Lines and time only through Clock.
package trigger

import (
	"fmt"
	"time"

	"github.com/sweeney/reflex-trigger/internal/gpio"
)

// Fixed timing. These are part of the device contract and are not configurable.
const (
	ConfirmSamples  = 5
	ConfirmInterval = 1 * time.Millisecond
	PulseHold       = 10 * time.Millisecond
	StartupOn       = 3000 * time.Millisecond
	StartupOff      = 1000 * time.Millisecond
	Tick            = 1 * time.Millisecond
)

// NumChannels is the number of sense channels.
const NumChannels = gpio.NumDetect

// Channel identifies a sense line.
type Channel int

const (
	Detect1 Channel = iota
	Detect2
	Detect3
)

// String returns the diagnostic identifier ("D1", "D2", "D3").
func (c Channel) String() string {
	return fmt.Sprintf("D%d", int(c)+1)
}

// Valid reports whether c names one of the sense channels.
func (c Channel) Valid() bool {
	return c >= Detect1 && c <= Detect3
}

// Output identifies a hit line.
type Output int

const (
	Hit1 Output = iota
	Hit2
	Hit3
)

// String returns the line name ("HIT1", "HIT2", "HIT3").
func (o Output) String() string {
	return fmt.Sprintf("HIT%d", int(o)+1)
}

// routes is cross-wired on purpose: D1 drives HIT2 and D2 drives HIT1.
var routes = [NumChannels]Output{
	Detect1: Hit2,
	Detect2: Hit1,
	Detect3: Hit3,
}

// Route returns the output driven for a confirmed detection on c.
func Route(c Channel) Output {
	return routes[c]
}

// Outcome is the result of firing one channel.
type Outcome struct {
	Channel   Channel
	Target    Output
	Confirmed bool
	At        time.Time
}

// Reporter observes outcomes. Report is called on the dispatch goroutine,
// for confirmed outcomes while the pulse is being held, so it must not block.
type Reporter interface {
	Report(o Outcome)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(o Outcome)

// Report calls f(o).
func (f ReporterFunc) Report(o Outcome) { f(o) }

// Clock is the time source for every wait in the pipeline.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}
