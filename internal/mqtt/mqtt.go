// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/reflex-trigger/internal/trigger"
)

// Topic is the MQTT topic for confirmed detections.
const Topic = "reflex/trigger/detections"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "reflex/trigger/system"

// System event names.
const (
	EventStartup   = "STARTUP"
	EventShutdown  = "SHUTDOWN"
	EventHeartbeat = "HEARTBEAT"
	EventOffline   = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a detection to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(o trigger.Outcome) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Detection DetectionPayload `json:"detection"`
}

// DetectionPayload contains the detection details.
type DetectionPayload struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Output    string `json:"output"`
}

// FormatPayload creates the JSON payload for a confirmed detection.
func FormatPayload(o trigger.Outcome) ([]byte, error) {
	payload := Payload{
		Detection: DetectionPayload{
			Timestamp: o.At.UTC().Format(time.RFC3339Nano),
			Channel:   o.Channel.String(),
			Output:    o.Target.String(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message the broker publishes on
// TopicSystem when the connection drops without a clean disconnect.
func WillPayload(connectedAt time.Time) []byte {
	data, _ := FormatSystemPayload(SystemEvent{
		Timestamp: connectedAt,
		Event:     EventOffline,
		Reason:    "connection lost",
	})
	return data
}
