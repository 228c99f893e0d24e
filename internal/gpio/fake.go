package gpio

import (
	"errors"
	"sort"
	"time"
)

// FakeClock is a virtual clock for tests. Sleep advances it instantly.
// Not safe for concurrent use.
type FakeClock struct {
	start     time.Time
	now       time.Time
	onAdvance func(from, to time.Duration)
}

// NewFakeClock creates a FakeClock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{start: start, now: start}
}

// Now returns the current virtual time.
func (c *FakeClock) Now() time.Time {
	return c.now
}

// Sleep advances the virtual time by d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	from := c.Elapsed()
	c.now = c.now.Add(d)
	if c.onAdvance != nil {
		c.onAdvance(from, c.Elapsed())
	}
}

// Elapsed returns the virtual time since the clock was created.
func (c *FakeClock) Elapsed() time.Duration {
	return c.now.Sub(c.start)
}

// Span is an interval [From, To) during which a FakeInput reads high,
// measured from the clock's start.
type Span struct {
	From time.Duration
	To   time.Duration
}

// FakeInput is a sense line driven by a scripted waveform.
type FakeInput struct {
	clock *FakeClock

	// Spans holds the high intervals. Anything outside them reads low.
	Spans []Span

	// Reads counts calls to Value.
	Reads int

	// ReadError, if set, will be returned by Value.
	ReadError error
}

// Value reports whether the waveform is high at the current virtual time.
func (f *FakeInput) Value() (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	t := f.clock.Elapsed()
	for _, s := range f.Spans {
		if t >= s.From && t < s.To {
			return true, nil
		}
	}
	return false, nil
}

// Change is one recorded write to a FakeOutput.
type Change struct {
	At   time.Duration
	Line string
	High bool
}

// FakeOutput records every write into its board's trace.
type FakeOutput struct {
	board *FakeBoard
	name  string

	// High is the last value written.
	High bool

	// SetError, if set, will be returned by Set (the value is still recorded).
	SetError error
}

// Set records the write.
func (o *FakeOutput) Set(high bool) error {
	o.High = high
	o.board.Trace = append(o.board.Trace, Change{At: o.board.Clock.Elapsed(), Line: o.name, High: high})
	return o.SetError
}

// FakeBoard is a test double for the whole set of lines. Rising edges of the
// scripted waveforms are delivered to the registered EdgeFunc while the
// clock sleeps across them, the way a hardware interrupt lands during a
// blocking wait.
type FakeBoard struct {
	Clock  *FakeClock
	Detect [NumDetect]*FakeInput
	Hit    [NumDetect]*FakeOutput
	LED    *FakeOutput

	// Trace contains every output write in order.
	Trace []Change

	// Closed tracks if Close was called.
	Closed bool

	onRise EdgeFunc
}

// Output line names used in Trace.
const (
	LineHit1 = "HIT1"
	LineHit2 = "HIT2"
	LineHit3 = "HIT3"
	LineLED  = "LED"
)

// NewFakeBoard creates a FakeBoard whose clock starts at start. All inputs read low.
func NewFakeBoard(start time.Time) *FakeBoard {
	b := &FakeBoard{Clock: NewFakeClock(start)}
	for i := range b.Detect {
		b.Detect[i] = &FakeInput{clock: b.Clock}
	}
	for i, name := range []string{LineHit1, LineHit2, LineHit3} {
		b.Hit[i] = &FakeOutput{board: b, name: name}
	}
	b.LED = &FakeOutput{board: b, name: LineLED}
	b.Clock.onAdvance = b.deliverEdges
	return b
}

// OnRise registers the rising edge handler.
func (b *FakeBoard) OnRise(fn EdgeFunc) {
	b.onRise = fn
}

// Pulse schedules sense line `line` high for length starting at `at`.
// Edges at time zero are never delivered; schedule pulses after the start.
func (b *FakeBoard) Pulse(line int, at, length time.Duration) {
	in := b.Detect[line]
	in.Spans = append(in.Spans, Span{From: at, To: at + length})
}

// Lines returns the board's lines.
func (b *FakeBoard) Lines() Lines {
	var l Lines
	for i := range b.Detect {
		l.Detect[i] = b.Detect[i]
		l.Hit[i] = b.Hit[i]
	}
	l.LED = b.LED
	return l
}

// Close marks the board as closed.
func (b *FakeBoard) Close() error {
	if b.Closed {
		return errors.New("already closed")
	}
	b.Closed = true
	return nil
}

// ResetTrace clears recorded writes.
func (b *FakeBoard) ResetTrace() {
	b.Trace = nil
}

type edge struct {
	at   time.Duration
	line int
}

// deliverEdges calls onRise for every span starting in (from, to], in time order.
func (b *FakeBoard) deliverEdges(from, to time.Duration) {
	if b.onRise == nil {
		return
	}
	var edges []edge
	for i, in := range b.Detect {
		for _, s := range in.Spans {
			if s.From > from && s.From <= to {
				edges = append(edges, edge{at: s.From, line: i})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].at != edges[j].at {
			return edges[i].at < edges[j].at
		}
		return edges[i].line < edges[j].line
	})
	for _, e := range edges {
		b.onRise(e.line)
	}
}
