package trigger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sweeney/reflex-trigger/internal/gpio"
)

// Controller runs the pipeline on a single goroutine. Only Flags is shared
// with the edge callbacks.
type Controller struct {
	lines    gpio.Lines
	flags    *Flags
	clock    Clock
	reporter Reporter
	log      zerolog.Logger
}

// NewController creates a controller over lines. The edge callbacks returned
// by Capture(flags) must be registered on the sense lines separately.
// reporter may be nil.
func NewController(lines gpio.Lines, flags *Flags, clock Clock, reporter Reporter, log zerolog.Logger) *Controller {
	if reporter == nil {
		reporter = ReporterFunc(func(Outcome) {})
	}
	return &Controller{
		lines:    lines,
		flags:    flags,
		clock:    clock,
		reporter: reporter,
		log:      log,
	}
}

// Startup shows the power-on signal: indicator on for StartupOn, then off for
// StartupOff. Edges arriving meanwhile stay pending until the first Step.
func (c *Controller) Startup() {
	c.set("led", c.lines.LED, true)
	c.clock.Sleep(StartupOn)
	c.set("led", c.lines.LED, false)
	c.clock.Sleep(StartupOff)
}

// Run repeats Step until ctx is done. Cancellation is only checked between
// iterations, so a pulse in progress always completes. All outputs are left
// off on return.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.allOff()
			return nil
		default:
		}
		c.Step()
	}
}

// Step is one dispatcher iteration: drain the pending flags, fire each
// pending channel in order D1, D2, D3, then sleep one Tick.
func (c *Controller) Step() {
	pending := c.flags.SnapshotAndClear()
	for i, p := range pending {
		if p {
			c.Fire(Channel(i))
		}
	}
	c.clock.Sleep(Tick)
}

// Fire confirms ch and, if the signal holds, pulses its routed output and the
// indicator for PulseHold. Every output is off when Fire returns, whatever
// the confirmation result.
func (c *Controller) Fire(ch Channel) {
	target := Route(ch)

	if !c.Confirm(ch) {
		c.allOff()
		c.reporter.Report(Outcome{Channel: ch, Target: target, At: c.clock.Now()})
		c.log.Debug().Stringer("channel", ch).Msg("rejected")
		return
	}

	start := c.clock.Now()
	c.set("led", c.lines.LED, true)
	for i, out := range c.lines.Hit {
		if Output(i) != target {
			c.set(Output(i).String(), out, false)
		}
	}
	c.set(target.String(), c.lines.Hit[target], true)
	c.reporter.Report(Outcome{Channel: ch, Target: target, Confirmed: true, At: start})
	c.clock.Sleep(PulseHold)
	c.allOff()

	c.log.Info().Stringer("channel", ch).Stringer("output", target).Msg("pulse")
}

// Confirm reports whether ch reads high now and on each of ConfirmSamples
// further reads taken ConfirmInterval apart. It returns on the first low read.
// A read error counts as low.
func (c *Controller) Confirm(ch Channel) bool {
	in := c.lines.Detect[ch]
	if !c.read(ch, in) {
		return false
	}
	for i := 0; i < ConfirmSamples; i++ {
		c.clock.Sleep(ConfirmInterval)
		if !c.read(ch, in) {
			return false
		}
	}
	return true
}

func (c *Controller) read(ch Channel, in gpio.Input) bool {
	v, err := in.Value()
	if err != nil {
		c.log.Error().Err(err).Stringer("channel", ch).Msg("gpio read error")
		return false
	}
	return v
}

// allOff drives the indicator and every hit line inactive.
func (c *Controller) allOff() {
	c.set("led", c.lines.LED, false)
	for i, out := range c.lines.Hit {
		c.set(Output(i).String(), out, false)
	}
}

func (c *Controller) set(name string, out gpio.Output, high bool) {
	if err := out.Set(high); err != nil {
		c.log.Error().Err(err).Str("line", name).Bool("high", high).Msg("gpio write error")
	}
}
