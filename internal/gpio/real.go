//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware through the Linux GPIO character device.
type RealBoard struct {
	chip   *gpiocdev.Chip
	detect [NumDetect]*gpiocdev.Line
	hit    [NumDetect]*gpiocdev.Line
	led    *gpiocdev.Line
}

// NewRealBoard requests every line on the chip named in p.
// Sense lines are inputs with pull-down. If onRise is non-nil it is registered
// as the rising edge handler of each sense line. Outputs start low.
func NewRealBoard(p Pins, onRise EdgeFunc) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", p.Chip, err)
	}
	b := &RealBoard{chip: chip}

	for i, offset := range p.Detect {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
		if onRise != nil {
			line := i
			opts = append(opts,
				gpiocdev.WithRisingEdge,
				gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onRise(line) }),
			)
		}
		l, err := chip.RequestLine(offset, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request detect pin %d: %w", offset, err)
		}
		b.detect[i] = l
	}

	for i, offset := range p.Hit {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request hit pin %d: %w", offset, err)
		}
		b.hit[i] = l
	}

	led, err := chip.RequestLine(p.LED, gpiocdev.AsOutput(0))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request led pin %d: %w", p.LED, err)
	}
	b.led = led

	return b, nil
}

// Lines returns the board's lines.
func (b *RealBoard) Lines() Lines {
	var l Lines
	for i := range b.detect {
		l.Detect[i] = realInput{b.detect[i]}
		l.Hit[i] = realOutput{b.hit[i]}
	}
	l.LED = realOutput{b.led}
	return l
}

// Close releases GPIO resources.
// Outputs are driven low and every line is reconfigured as a pulled-down
// input, matching boot defaults, before it is released.
func (b *RealBoard) Close() error {
	var errs []error

	release := func(name string, l *gpiocdev.Line, output bool) {
		if l == nil {
			return
		}
		if output {
			if err := l.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("clear %s: %w", name, err))
			}
			if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure %s: %w", name, err))
			}
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}

	for i, l := range b.detect {
		release(fmt.Sprintf("detect %d", i+1), l, false)
	}
	for i, l := range b.hit {
		release(fmt.Sprintf("hit %d", i+1), l, true)
	}
	release("led", b.led, true)

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

type realInput struct{ l *gpiocdev.Line }

func (r realInput) Value() (bool, error) {
	v, err := r.l.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

type realOutput struct{ l *gpiocdev.Line }

func (r realOutput) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return r.l.SetValue(v)
}
