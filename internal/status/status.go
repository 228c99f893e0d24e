// Package status provides a thread-safe status tracker for the reflex-trigger daemon.
// It is fed by the dispatcher as a trigger.Reporter and read by HTTP handlers
// and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/reflex-trigger/internal/trigger"
)

// Phase is the daemon lifecycle stage.
type Phase string

const (
	PhaseStartup Phase = "STARTUP"
	PhaseRunning Phase = "RUNNING"
	PhaseStopped Phase = "STOPPED"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip        string
	DetectPins  []int
	HitPins     []int
	LEDPin      int
	Broker      string
	HeartbeatMs int64
	HTTPAddr    string
}

// ChannelStats counts fire outcomes for one sense channel.
type ChannelStats struct {
	Confirmed     int
	Rejected      int
	LastConfirmed time.Time // zero if never confirmed
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Phase         Phase
	Channels      [trigger.NumChannels]ChannelStats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TotalConfirmed returns the number of confirmed detections on all channels.
func (s Snapshot) TotalConfirmed() int {
	n := 0
	for _, c := range s.Channels {
		n += c.Confirmed
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// The phase starts as STARTUP.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Phase:     PhaseStartup,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Report records a fire outcome. It only takes the lock briefly, so it is
// safe to call from the dispatch goroutine.
func (t *Tracker) Report(o trigger.Outcome) {
	if !o.Channel.Valid() {
		return
	}
	t.mu.Lock()
	c := &t.snap.Channels[o.Channel]
	if o.Confirmed {
		c.Confirmed++
		c.LastConfirmed = o.At
	} else {
		c.Rejected++
	}
	t.mu.Unlock()
}

// SetPhase sets the lifecycle phase.
func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	t.snap.Phase = p
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
