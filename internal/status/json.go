package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/reflex-trigger/internal/trigger"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Phase         string        `json:"phase"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Channels      []ChannelJSON `json:"channels"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ChannelJSON is the JSON representation of one sense channel.
type ChannelJSON struct {
	ID            string `json:"id"`
	Output        string `json:"output"`
	Confirmed     int    `json:"confirmed"`
	Rejected      int    `json:"rejected"`
	LastConfirmed string `json:"last_confirmed,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip"`
	DetectPins  []int  `json:"detect_pins"`
	HitPins     []int  `json:"hit_pins"`
	LEDPin      int    `json:"led_pin"`
	Broker      string `json:"broker"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for i, c := range snap.Channels {
		ch := trigger.Channel(i)
		cj := ChannelJSON{
			ID:        ch.String(),
			Output:    trigger.Route(ch).String(),
			Confirmed: c.Confirmed,
			Rejected:  c.Rejected,
		}
		if !c.LastConfirmed.IsZero() {
			cj.LastConfirmed = c.LastConfirmed.UTC().Format(time.RFC3339Nano)
		}
		channels = append(channels, cj)
	}

	return StatusInner{
		Phase:         phase,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Channels:      channels,
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			DetectPins:  snap.Config.DetectPins,
			HitPins:     snap.Config.HitPins,
			LEDPin:      snap.Config.LEDPin,
			Broker:      snap.Config.Broker,
			HeartbeatMs: snap.Config.HeartbeatMs,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
