package trigger

import (
	"sync/atomic"

	"github.com/sweeney/reflex-trigger/internal/gpio"
)

// Flags holds one pending bit per channel. Edge callbacks set bits; the
// dispatcher takes and clears all of them in one atomic swap, so an edge is
// either in the snapshot or left for the next one, never both.
// Several edges between two drains collapse into one pending bit.
type Flags struct {
	bits atomic.Uint32
}

// Set marks c pending. It never blocks.
func (f *Flags) Set(c Channel) {
	f.bits.Or(1 << uint(c))
}

// SnapshotAndClear returns the pending bits and clears them.
func (f *Flags) SnapshotAndClear() [NumChannels]bool {
	b := f.bits.Swap(0)
	var out [NumChannels]bool
	for i := range out {
		out[i] = b&(1<<uint(i)) != 0
	}
	return out
}

// Capture returns the rising edge callback for the sense lines.
// It does nothing except mark the line's channel pending.
func Capture(f *Flags) gpio.EdgeFunc {
	return func(line int) {
		if c := Channel(line); c.Valid() {
			f.Set(c)
		}
	}
}
