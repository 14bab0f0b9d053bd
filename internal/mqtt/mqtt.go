// Package mqtt publishes button readings with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for button readings.
const Topic = "bootkey/button/level"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "bootkey/button/system"

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends a button reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Reading is one level delivered by a read of the button device.
type Reading struct {
	Timestamp time.Time
	Level     int
	Seq       uint64 // 1-based count of readings handed to the publisher by this process
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the reading details.
type ButtonPayload struct {
	Timestamp string `json:"timestamp"`
	Level     int    `json:"level"`
	Seq       uint64 `json:"seq"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r Reading) ([]byte, error) {
	payload := Payload{
		Button: ButtonPayload{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Level:     r.Level,
			Seq:       r.Seq,
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
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// FormatWillPayload returns the last-will message the broker publishes if the
// daemon disappears without a clean shutdown. It has no timestamp because it
// is registered at connect time.
func FormatWillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "LWT"})
	return data
}
