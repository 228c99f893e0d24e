package mqtt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/sweeney/reflex-trigger/internal/trigger"
)

// DefaultQueueSize bounds the number of detections waiting to be published.
const DefaultQueueSize = 64

// StatusFunc renders a full status payload for a system event.
type StatusFunc func(event, reason string) []byte

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	QueueSize int
	Heartbeat time.Duration // 0 disables heartbeats
	Status    StatusFunc    // nil publishes the short system payload
	Clock     clock.Clock   // nil uses the wall clock
	Log       zerolog.Logger
}

// Forwarder moves confirmed detections from the dispatch goroutine to a
// Publisher running on its own goroutine. Report never blocks: when the queue
// is full the detection is dropped and counted.
type Forwarder struct {
	pub       Publisher
	queue     chan trigger.Outcome
	heartbeat time.Duration
	status    StatusFunc
	clock     clock.Clock
	log       zerolog.Logger

	dropped atomic.Uint64
}

// NewForwarder creates a Forwarder publishing to pub.
func NewForwarder(pub Publisher, opt ForwarderOptions) *Forwarder {
	if opt.QueueSize <= 0 {
		opt.QueueSize = DefaultQueueSize
	}
	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
	return &Forwarder{
		pub:       pub,
		queue:     make(chan trigger.Outcome, opt.QueueSize),
		heartbeat: opt.Heartbeat,
		status:    opt.Status,
		clock:     opt.Clock,
		log:       opt.Log,
	}
}

// Report queues confirmed outcomes for publishing. Rejections are ignored.
func (f *Forwarder) Report(o trigger.Outcome) {
	if !o.Confirmed {
		return
	}
	select {
	case f.queue <- o:
	default:
		if f.dropped.Add(1) == 1 {
			f.log.Warn().Msg("publish queue full, dropping detections")
		}
	}
}

// Dropped returns how many detections were discarded because the queue was full.
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Run publishes a STARTUP event, then forwards queued detections and emits
// heartbeats until ctx is done. Detections still queued at that point are
// published before Run returns. Publish errors are logged, never returned.
func (f *Forwarder) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if f.heartbeat > 0 {
		t := f.clock.Ticker(f.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	f.System(EventStartup, "")

	for {
		select {
		case o := <-f.queue:
			f.publish(o)
		case <-tick:
			f.System(EventHeartbeat, "")
		case <-ctx.Done():
			for {
				select {
				case o := <-f.queue:
					f.publish(o)
				default:
					return nil
				}
			}
		}
	}
}

func (f *Forwarder) publish(o trigger.Outcome) {
	if err := f.pub.Publish(o); err != nil {
		f.log.Error().Err(err).Stringer("channel", o.Channel).Msg("publish detection failed")
	}
}

// System publishes a retained system event with the current status attached.
func (f *Forwarder) System(event, reason string) {
	e := SystemEvent{
		Timestamp: f.clock.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if f.status != nil {
		e.RawPayload = f.status(event, reason)
	}
	if err := f.pub.PublishSystem(e); err != nil {
		f.log.Error().Err(err).Str("event", event).Msg("publish system event failed")
	}
}
