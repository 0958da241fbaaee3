package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/kingrea/kitchenline/internal/config"
)

func testSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0,
		MaxBodyBytes: 1024,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
		PingInterval: time.Second,
	}
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("KITCHEN_BRIDGE_PORT", "9001")
	t.Setenv("KITCHEN_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("KITCHEN_BRIDGE_ENABLED", "true")
	settings := SettingsFromConfig(config.Default())
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if !settings.Enabled {
		t.Fatalf("expected enabled=true from env override")
	}
	if settings.WebSocketURL() != "ws://0.0.0.0:9001/ws" {
		t.Fatalf("unexpected stream url %s", settings.WebSocketURL())
	}
}

func TestSettingsEnabledByRemoteCoordinator(t *testing.T) {
	cfg := config.Default()
	cfg.Project.Bridge.Coordinator = config.CoordinatorRemote
	if !SettingsFromConfig(cfg).Enabled {
		t.Fatalf("remote coordinator should enable the bridge")
	}
	if SettingsFromConfig(config.Default()).Enabled {
		t.Fatalf("bridge should be off by default")
	}
}

func TestServerAcceptsAcks(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1730000000, 0).UTC()
	recorded := make(chan StepAck, 1)
	srv := NewServer(testSettings(),
		WithClock(func() time.Time { return fixed }),
		WithProcessor(AckProcessorFunc(func(a StepAck) error {
			recorded <- a
			return nil
		})))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	base := srv.BaseURL()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
	buf, err := json.Marshal(StepAck{EventID: "evt-1", WorkerID: 1, StepIndex: 4})
	if err != nil {
		t.Fatalf("marshal ack: %v", err)
	}
	resp, err = http.Post(base+"/acks", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post ack: %v", err)
	}
	var body ackResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if !body.ServerTime.Equal(fixed) {
		t.Fatalf("expected server time %s, got %s", fixed, body.ServerTime)
	}
	select {
	case ack := <-recorded:
		if ack.WorkerID != 1 || ack.StepIndex != 4 {
			t.Fatalf("unexpected ack %+v", ack)
		}
	default:
		t.Fatalf("ack not forwarded to processor")
	}
}

func TestServerRejectsMalformedAck(t *testing.T) {
	t.Parallel()
	srv := NewServer(testSettings())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	resp, err := http.Post(srv.BaseURL()+"/acks", "application/json", bytes.NewReader([]byte(`{"worker_id":-3,"step_index":0}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServerEnforcesPayloadLimit(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.MaxBodyBytes = 64
	srv := NewServer(settings)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	payload := map[string]any{
		"worker_id":  1,
		"step_index": 0,
		"event_id":   string(bytes.Repeat([]byte("a"), 512)),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(srv.BaseURL()+"/acks", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestServerStreamsEventsToClient(t *testing.T) {
	t.Parallel()
	bus := NewBus(WithAckTimeout(5 * time.Second))
	defer bus.Close()
	srv := NewServer(testSettings(), WithEvents(bus.Events()), WithProcessor(bus))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, srv.StreamURL())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	go func() {
		for evt := range client.Events() {
			_ = client.Ack(evt.Ack())
		}
	}()
	evt := NewStepEvent(0, 7, 1, "Chop", 15, 15, 2)
	ack, err := bus.Handshake(ctx, evt)
	if err != nil {
		t.Fatalf("handshake over websocket: %v", err)
	}
	if ack.EventID != evt.EventID {
		t.Fatalf("ack for wrong event: %+v", ack)
	}
}

func TestServerDefaultsZeroLimits(t *testing.T) {
	t.Parallel()
	bus := NewBus(WithAckTimeout(5 * time.Second))
	defer bus.Close()
	srv := NewServer(Settings{Enabled: true, Host: "127.0.0.1"}, WithEvents(bus.Events()), WithProcessor(bus))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, srv.StreamURL())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	go func() {
		for evt := range client.Events() {
			_ = client.Ack(evt.Ack())
		}
	}()
	if _, err := bus.Handshake(ctx, NewStepEvent(1, 3, 0, "Fish", 28, 26, 1)); err != nil {
		t.Fatalf("handshake with defaulted settings: %v", err)
	}
	buf, err := json.Marshal(StepAck{WorkerID: 1, StepIndex: 9})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.BaseURL()+"/acks", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post ack: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 with the default body limit, got %d", resp.StatusCode)
	}
}
