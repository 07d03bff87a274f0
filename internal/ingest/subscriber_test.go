package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/radar-monitor/internal/models"
	"github.com/afroash/radar-monitor/internal/storage"
)

// fakeStore records inserts and can be told to fail
type fakeStore struct {
	readings  []*models.Reading
	insertErr error
}

func (f *fakeStore) Close() error   { return nil }
func (f *fakeStore) Migrate() error { return nil }

func (f *fakeStore) InsertReading(reading *models.Reading) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.readings = append(f.readings, reading)
	return nil
}

func (f *fakeStore) GetLatest(limit int) ([]*models.Reading, error) {
	if limit > len(f.readings) {
		limit = len(f.readings)
	}
	return f.readings[:limit], nil
}

func (f *fakeStore) GetStats() (*storage.Stats, error) {
	return &storage.Stats{TotalReadings: int64(len(f.readings))}, nil
}

func (f *fakeStore) Clear() (int64, error) {
	n := int64(len(f.readings))
	f.readings = nil
	return n, nil
}

// fakeMessage implements the broker client's message interface
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestSubscriber(store storage.Store) *Subscriber {
	cfg := SubscriberConfig{
		BrokerURL:            "tcp://localhost:1883",
		ClientID:             "test-subscriber",
		Topic:                "sensor/ultrasonic",
		KeepAlive:            time.Second,
		ConnectTimeout:       time.Second,
		ReconnectInterval:    100 * time.Millisecond,
		MaxReconnectInterval: time.Second,
	}
	return NewSubscriber(cfg, store, zerolog.Nop())
}

func TestHandleMessage_ValidPayload(t *testing.T) {
	store := &fakeStore{}
	sub := newTestSubscriber(store)

	sub.HandleMessage(nil, &fakeMessage{
		topic:   "sensor/ultrasonic",
		payload: []byte(`{"distance": 42.5, "angle": 90}`),
	})

	if len(store.readings) != 1 {
		t.Fatalf("Expected 1 stored reading, got %d", len(store.readings))
	}
	if store.readings[0].Distance != 42.5 {
		t.Errorf("Expected distance 42.5, got %f", store.readings[0].Distance)
	}
	if store.readings[0].Angle != 90 {
		t.Errorf("Expected angle 90, got %f", store.readings[0].Angle)
	}

	stats := sub.Stats()
	if stats.Received != 1 || stats.Stored != 1 {
		t.Errorf("Expected received=1 stored=1, got %+v", stats)
	}
}

func TestHandleMessage_AlternateFieldNames(t *testing.T) {
	store := &fakeStore{}
	sub := newTestSubscriber(store)

	sub.HandleMessage(nil, &fakeMessage{
		topic:   "sensor/ultrasonic",
		payload: []byte(`{"distance_cm": 30, "angle_deg": 45, "deviceId": "esp32_01"}`),
	})

	if len(store.readings) != 1 {
		t.Fatalf("Expected 1 stored reading, got %d", len(store.readings))
	}
	got := store.readings[0]
	if got.Distance != 30 || got.Angle != 45 || got.DeviceID != "esp32_01" {
		t.Errorf("Normalization failed: %+v", got)
	}
}

func TestHandleMessage_MalformedPayloadDropped(t *testing.T) {
	store := &fakeStore{}
	sub := newTestSubscriber(store)

	malformed := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"angle": 90}`),
		[]byte(`{"distance": "wat"}`),
		{0xff, 0xfe},
	}
	for _, payload := range malformed {
		sub.HandleMessage(nil, &fakeMessage{topic: "sensor/ultrasonic", payload: payload})
	}

	if len(store.readings) != 0 {
		t.Fatalf("Expected no stored readings, got %d", len(store.readings))
	}

	stats := sub.Stats()
	if stats.DecodeFailed != int64(len(malformed)) {
		t.Errorf("Expected %d decode failures, got %d", len(malformed), stats.DecodeFailed)
	}

	// Subscription must keep working after bad input
	sub.HandleMessage(nil, &fakeMessage{
		topic:   "sensor/ultrasonic",
		payload: []byte(`{"distance": 10}`),
	})
	if len(store.readings) != 1 {
		t.Fatalf("Expected valid message after malformed ones to be stored, got %d", len(store.readings))
	}
}

func TestHandleMessage_PersistFailureDropped(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("database is locked")}
	sub := newTestSubscriber(store)

	sub.HandleMessage(nil, &fakeMessage{
		topic:   "sensor/ultrasonic",
		payload: []byte(`{"distance": 42.5}`),
	})

	stats := sub.Stats()
	if stats.PersistFailed != 1 {
		t.Errorf("Expected 1 persist failure, got %d", stats.PersistFailed)
	}
	if stats.Stored != 0 {
		t.Errorf("Expected 0 stored, got %d", stats.Stored)
	}

	// Store recovers; the next message goes through
	store.insertErr = nil
	sub.HandleMessage(nil, &fakeMessage{
		topic:   "sensor/ultrasonic",
		payload: []byte(`{"distance": 11}`),
	})
	if len(store.readings) != 1 {
		t.Fatalf("Expected message after store recovery to be stored, got %d", len(store.readings))
	}
}

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateSubscribed, "subscribed"},
		{ConnectionState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestNewSubscriber_InitialState(t *testing.T) {
	sub := newTestSubscriber(&fakeStore{})

	if sub.State() != StateDisconnected {
		t.Errorf("Expected initial state disconnected, got %s", sub.State())
	}
	if stats := sub.Stats(); stats.Received != 0 {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}
