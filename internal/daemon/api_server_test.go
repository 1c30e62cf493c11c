package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestAPI(t *testing.T) (*httptest.Server, *Registry, *recordingOutput) {
	t.Helper()
	out := &recordingOutput{}
	reg := NewRegistry()
	_ = reg.Add(newIdleScheduler(t, testInstance("living", "media_player.living"), out))
	_ = reg.Add(newIdleScheduler(t, testInstance("kitchen", "media_player.kitchen"), out))

	srv := newAPIServer("127.0.0.1:0", reg, testLogger())
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, reg, out
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIServer_Speak(t *testing.T) {
	ts, reg, _ := newTestAPI(t)

	resp := postJSON(t, ts.URL+"/v1/speak", `{"message":"Dinner is ready","target":"media_player.kitchen","priority":2}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	var got SpeakResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Instance != "kitchen" {
		t.Errorf("Expected instance kitchen, got %s", got.Instance)
	}
	if got.Target != "media_player.kitchen" {
		t.Errorf("Expected target media_player.kitchen, got %s", got.Target)
	}
	if got.ID == "" {
		t.Error("Expected an announcement id")
	}
	if got.QueueSize != 1 {
		t.Errorf("Expected queue size 1, got %d", got.QueueSize)
	}

	kitchen, _ := reg.Get("kitchen")
	pending := kitchen.Status().Pending
	if len(pending) != 1 || pending[0].Priority != 2 {
		t.Errorf("Expected one pending item with priority 2, got %+v", pending)
	}
}

func TestAPIServer_SpeakValidation(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing message", `{"target":"media_player.living"}`, http.StatusBadRequest},
		{"blank message", `{"message":"   "}`, http.StatusBadRequest},
		{"volume above range", `{"message":"hi","volume_override":1.5}`, http.StatusBadRequest},
		{"volume below range", `{"message":"hi","volume_override":-0.1}`, http.StatusBadRequest},
		{"pre-roll above range", `{"message":"hi","pre_roll_ms":1500}`, http.StatusBadRequest},
		{"negative pre-roll", `{"message":"hi","pre_roll_ms":-1}`, http.StatusBadRequest},
		{"unknown field", `{"message":"hi","volume":0.5}`, http.StatusBadRequest},
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"bad language", `{"message":"hi","language":"not a tag!"}`, http.StatusBadRequest},
		{"unknown instance", `{"message":"hi","instance":"garage"}`, http.StatusNotFound},
		{"edges accepted", `{"message":"hi","volume_override":1,"pre_roll_ms":1000}`, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/speak", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
			if tt.want >= 400 {
				var e ErrorResponse
				if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
					t.Errorf("Expected an error body, got %v (%v)", e, err)
				}
			}
		})
	}
}

func TestAPIServer_Instances(t *testing.T) {
	ts, _, _ := newTestAPI(t)
	postJSON(t, ts.URL+"/v1/speak", `{"message":"one","instance":"living"}`)
	postJSON(t, ts.URL+"/v1/speak", `{"message":"two","instance":"living","priority":5}`)

	resp, err := http.Get(ts.URL + "/v1/instances")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var got InstancesResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(got.Instances) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(got.Instances))
	}

	living := got.Instances[0]
	if living.Name != "living" || living.QueueSize != 2 {
		t.Errorf("Expected living with 2 pending, got %s with %d", living.Name, living.QueueSize)
	}
	if living.Pending[0].Message != "two" {
		t.Errorf("Expected higher priority item first, got %q", living.Pending[0].Message)
	}
	if living.State != "idle" {
		t.Errorf("Expected state idle, got %s", living.State)
	}
	if got.Instances[1].Name != "kitchen" || got.Instances[1].QueueSize != 0 {
		t.Errorf("Expected empty kitchen, got %+v", got.Instances[1])
	}
}

func TestAPIServer_ClearAndSkip(t *testing.T) {
	ts, _, out := newTestAPI(t)
	postJSON(t, ts.URL+"/v1/speak", `{"message":"one"}`)
	postJSON(t, ts.URL+"/v1/speak", `{"message":"two"}`)

	resp := postJSON(t, ts.URL+"/v1/instances/living/clear", "")
	var cleared ClearResponse
	if err := json.NewDecoder(resp.Body).Decode(&cleared); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if cleared.Dropped != 2 {
		t.Errorf("Expected 2 dropped, got %d", cleared.Dropped)
	}

	resp = postJSON(t, ts.URL+"/v1/instances/living/skip", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if out.stopCount() != 1 {
		t.Errorf("Expected one stop request, got %d", out.stopCount())
	}

	out.mu.Lock()
	out.stopErr = errFakeStop
	out.mu.Unlock()
	resp = postJSON(t, ts.URL+"/v1/instances/living/skip", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502 on output failure, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/v1/instances/garage/clear", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestAPIServer_MethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/v1/speak")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestAPIServer_StoppedInstance(t *testing.T) {
	ts, reg, _ := newTestAPI(t)
	living, _ := reg.Get("living")
	living.Stop()

	resp := postJSON(t, ts.URL+"/v1/speak", `{"message":"hi","instance":"living"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	var e ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	if !strings.Contains(e.Error, "stopped") {
		t.Errorf("Expected stopped error, got %q", e.Error)
	}
}
