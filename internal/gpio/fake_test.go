package gpio

import (
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFakeClockSleep(t *testing.T) {
	c := NewFakeClock(epoch)

	c.Sleep(3 * time.Millisecond)
	if got := c.Elapsed(); got != 3*time.Millisecond {
		t.Errorf("elapsed: expected 3ms, got %v", got)
	}
	if !c.Now().Equal(epoch.Add(3 * time.Millisecond)) {
		t.Errorf("unexpected now: %v", c.Now())
	}

	// Non-positive sleeps do not move the clock
	c.Sleep(0)
	c.Sleep(-time.Second)
	if got := c.Elapsed(); got != 3*time.Millisecond {
		t.Errorf("elapsed after zero sleep: expected 3ms, got %v", got)
	}
}

func TestFakeInputWaveform(t *testing.T) {
	b := NewFakeBoard(epoch)
	b.Pulse(0, 2*time.Millisecond, 3*time.Millisecond) // high over [2ms, 5ms)

	want := []bool{false, false, true, true, true, false, false}
	for i, w := range want {
		got, err := b.Detect[0].Value()
		if err != nil {
			t.Fatalf("t=%dms: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("t=%dms: expected %v, got %v", i, w, got)
		}
		b.Clock.Sleep(time.Millisecond)
	}

	if b.Detect[0].Reads != len(want) {
		t.Errorf("expected %d reads, got %d", len(want), b.Detect[0].Reads)
	}

	// Other lines stay low
	if v, _ := b.Detect[1].Value(); v {
		t.Error("detect 2 should read low")
	}
}

func TestFakeInputError(t *testing.T) {
	b := NewFakeBoard(epoch)
	b.Pulse(2, time.Millisecond, time.Hour)
	b.Detect[2].ReadError = errors.New("simulated error")
	b.Clock.Sleep(2 * time.Millisecond)

	v, err := b.Detect[2].Value()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if v {
		t.Error("value should be low on error")
	}
}

func TestFakeBoardDeliversEdgesDuringSleep(t *testing.T) {
	b := NewFakeBoard(epoch)
	var got []int
	b.OnRise(func(line int) { got = append(got, line) })

	b.Pulse(2, 1*time.Millisecond, 10*time.Millisecond)
	b.Pulse(0, 1*time.Millisecond, 10*time.Millisecond)
	b.Pulse(1, 4*time.Millisecond, 10*time.Millisecond)
	b.Pulse(1, 20*time.Millisecond, 10*time.Millisecond)

	b.Clock.Sleep(2 * time.Millisecond)
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("expected edges [0 2], got %v", got)
	}

	// Edge exactly at the end of the slept interval is delivered
	b.Clock.Sleep(2 * time.Millisecond)
	if len(got) != 3 || got[2] != 1 {
		t.Fatalf("expected edge on line 1 at 4ms, got %v", got)
	}

	// No duplicate delivery
	b.Clock.Sleep(10 * time.Millisecond)
	if len(got) != 3 {
		t.Fatalf("expected no new edges, got %v", got)
	}

	b.Clock.Sleep(10 * time.Millisecond)
	if len(got) != 4 || got[3] != 1 {
		t.Fatalf("expected second edge on line 1, got %v", got)
	}
}

func TestFakeBoardWithoutHandler(t *testing.T) {
	b := NewFakeBoard(epoch)
	b.Pulse(0, time.Millisecond, time.Millisecond)
	b.Clock.Sleep(5 * time.Millisecond) // must not panic
}

func TestFakeOutputTrace(t *testing.T) {
	b := NewFakeBoard(epoch)
	l := b.Lines()

	l.LED.Set(true)
	b.Clock.Sleep(time.Millisecond)
	l.Hit[1].Set(true)
	b.Clock.Sleep(time.Millisecond)
	l.Hit[1].Set(false)
	l.LED.Set(false)

	want := []Change{
		{At: 0, Line: LineLED, High: true},
		{At: time.Millisecond, Line: LineHit2, High: true},
		{At: 2 * time.Millisecond, Line: LineHit2, High: false},
		{At: 2 * time.Millisecond, Line: LineLED, High: false},
	}
	if len(b.Trace) != len(want) {
		t.Fatalf("expected %d changes, got %d: %+v", len(want), len(b.Trace), b.Trace)
	}
	for i := range want {
		if b.Trace[i] != want[i] {
			t.Errorf("change %d: expected %+v, got %+v", i, want[i], b.Trace[i])
		}
	}
	if b.LED.High || b.Hit[1].High {
		t.Error("outputs should be low")
	}

	b.ResetTrace()
	if len(b.Trace) != 0 {
		t.Error("trace should be empty after reset")
	}
}

func TestFakeOutputError(t *testing.T) {
	b := NewFakeBoard(epoch)
	b.Hit[0].SetError = errors.New("simulated error")

	if err := b.Hit[0].Set(true); err == nil {
		t.Error("expected error to be returned")
	}
	if !b.Hit[0].High {
		t.Error("value should still be recorded")
	}
}

func TestFakeBoardClose(t *testing.T) {
	b := NewFakeBoard(epoch)

	if b.Closed {
		t.Error("should not be closed initially")
	}
	if err := b.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !b.Closed {
		t.Error("should be closed after Close()")
	}
	if err := b.Close(); err == nil {
		t.Error("expected error on double close")
	}
}

func TestDefaultPins(t *testing.T) {
	p := DefaultPins()
	if p.Chip != "gpiochip0" {
		t.Errorf("chip: got %q", p.Chip)
	}
	if p.Detect != [NumDetect]int{3, 4, 5} {
		t.Errorf("detect: got %v", p.Detect)
	}
	if p.Hit != [NumDetect]int{12, 13, 14} {
		t.Errorf("hit: got %v", p.Hit)
	}
	if p.LED != 25 {
		t.Errorf("led: got %d", p.LED)
	}
}
