package daemon

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

var errFakeStop = errors.New("speaker offline")

func TestNewClient_Addr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"", "http://" + DefaultAddr},
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
		{"http://host:1/", "http://host:1"},
		{"https://tts.example.com", "https://tts.example.com"},
	}
	for _, tt := range tests {
		if got := NewClient(tt.addr).base; got != tt.want {
			t.Errorf("NewClient(%q): expected %s, got %s", tt.addr, tt.want, got)
		}
	}
}

func TestClient_RoundTrip(t *testing.T) {
	ts, _, _ := newTestAPI(t)
	c := NewClient(ts.URL)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health failed: %v", err)
	}

	vol := 0.3
	resp, err := c.Speak(ctx, SpeakRequest{Message: "Laundry is done", Instance: "kitchen", VolumeOverride: &vol})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if resp.Instance != "kitchen" {
		t.Errorf("Expected kitchen, got %s", resp.Instance)
	}

	st, err := c.Instance(ctx, "kitchen")
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	if st.QueueSize != 1 || st.Pending[0].ID != resp.ID {
		t.Errorf("Expected the spoken item pending, got %+v", st.Pending)
	}

	all, err := c.Instances(ctx)
	if err != nil {
		t.Fatalf("Instances failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 instances, got %d", len(all))
	}

	dropped, err := c.Clear(ctx, "kitchen")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", dropped)
	}

	if _, err := c.Skip(ctx, "kitchen"); err != nil {
		t.Errorf("Skip failed: %v", err)
	}
}

func TestClient_Errors(t *testing.T) {
	ts, _, _ := newTestAPI(t)
	c := NewClient(ts.URL)

	_, err := c.Clear(context.Background(), "garage")
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ClientError, got %v", err)
	}
	if ce.Status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", ce.Status)
	}
	if ce.Message == "" {
		t.Error("Expected the server's error message")
	}

	_, err = c.Speak(context.Background(), SpeakRequest{})
	if !errors.As(err, &ce) || ce.Status != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty message, got %v", err)
	}

	unreachable := NewClient("127.0.0.1:1")
	if err := unreachable.Health(context.Background()); err == nil {
		t.Error("Expected an error for an unreachable daemon")
	}
}
