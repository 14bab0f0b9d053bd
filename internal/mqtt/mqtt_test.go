package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFormatPayload(t *testing.T) {
	r := Reading{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Level:     1,
		Seq:       3,
	}

	payload, err := FormatPayload(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"button":{"timestamp":"2026-02-02T22:18:12Z","level":1,"seq":3}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	r := Reading{Timestamp: time.Date(2026, 2, 2, 23, 18, 12, 0, loc)}

	payload, err := FormatPayload(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Button.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp: got %s, want UTC", parsed.Button.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "bootkey/button/level" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "bootkey/button/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 10, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T19:10:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("payload: got %s, want %s", payload, raw)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	expected := `{"system":{"event":"OFFLINE","reason":"LWT"}}`
	if got := string(FormatWillPayload()); got != expected {
		t.Errorf("unexpected will payload:\ngot:  %s\nwant: %s", got, expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	r := Reading{Timestamp: time.Now(), Level: 1, Seq: 1}
	if err := f.Publish(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(f.Readings))
	}
	if f.Readings[0].Level != 1 {
		t.Errorf("level: got %d, want 1", f.Readings[0].Level)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(Reading{}); err == nil {
		t.Error("expected error to be returned")
	}
	if f.ReadingCount() != 0 {
		t.Errorf("expected 0 readings on error, got %d", f.ReadingCount())
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	event := SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "SIGTERM", Retained: true}
	if err := f.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(f.SystemEvents))
	}
	if f.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("event: got %s, want SHUTDOWN", f.SystemEvents[0].Event)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("expected retained flag to be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(Reading{Level: 1})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Readings) != 0 || len(f.Payloads) != 0 {
		t.Error("expected readings cleared")
	}
	if len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("expected system events cleared")
	}
	if f.Closed || f.IsConnected() {
		t.Error("expected flags cleared")
	}
}
