// Package diag holds the outcome observers that sit next to the dispatcher:
// the plain console line per detection and the fan-out that feeds several
// observers from one trigger.Reporter.
package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/sweeney/reflex-trigger/internal/trigger"
)

// Console writes "D1", "D2" or "D3" on its own line for every confirmed
// detection. Rejections produce no output.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Report implements trigger.Reporter.
func (c *Console) Report(o trigger.Outcome) {
	if !o.Confirmed {
		return
	}
	c.mu.Lock()
	fmt.Fprintln(c.out, o.Channel)
	c.mu.Unlock()
}

// Fanout forwards every outcome to each reporter in order.
type Fanout []trigger.Reporter

// Report implements trigger.Reporter.
func (f Fanout) Report(o trigger.Outcome) {
	for _, r := range f {
		r.Report(o)
	}
}

// Join builds a reporter from the non-nil entries of rs. It returns nil when
// none are left, and the single reporter unwrapped when only one is.
func Join(rs ...trigger.Reporter) trigger.Reporter {
	var out Fanout
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
