package output

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeHA struct {
	mu       sync.Mutex
	requests []recordedRequest
	states   map[string]string
}

func (f *fakeHA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	if rec.Auth != "Bearer secret" {
		http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/api/states/"):
		body, ok := f.states[r.URL.Path[len("/api/states/"):]]
		if !ok {
			http.Error(w, `{"message": "Entity not found."}`, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, body)
	case r.Method == http.MethodPost:
		_, _ = io.WriteString(w, "[]")
	default:
		_, _ = io.WriteString(w, `{"message": "API running."}`)
	}
}

func (f *fakeHA) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestHA(t *testing.T, token string) (*HomeAssistant, *fakeHA) {
	t.Helper()
	fake := &fakeHA{states: map[string]string{
		"media_player.kitchen": `{"state": "playing", "attributes": {"volume_level": 0.6}}`,
		"media_player.garage":  `{"state": "off", "attributes": {}}`,
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ha := NewHomeAssistant(tts.HomeAssistantConfig{URL: srv.URL + "/", Token: token, Timeout: 2 * time.Second}, log.New(io.Discard))
	return ha, fake
}

func TestHomeAssistant_SpeakModernService(t *testing.T) {
	ha, fake := newTestHA(t, "secret")

	err := ha.Speak(context.Background(), ttypes.SpeakRequest{
		Target:   "media_player.living",
		Message:  "Dinner is ready",
		Language: "en-GB",
		Options:  map[string]any{"voice": "Ryan"},
		Service:  "tts.speak",
		Engine:   "tts.piper",
	})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	req := fake.last()
	if req.Path != "/api/services/tts/speak" {
		t.Errorf("Expected tts/speak path, got %s", req.Path)
	}
	if req.Body["media_player_entity_id"] != "media_player.living" {
		t.Errorf("Expected media_player_entity_id, got %v", req.Body)
	}
	if req.Body["entity_id"] != "tts.piper" {
		t.Errorf("Expected entity_id to be the TTS entity, got %v", req.Body["entity_id"])
	}
	if req.Body["language"] != "en-GB" || req.Body["message"] != "Dinner is ready" {
		t.Errorf("Unexpected body %v", req.Body)
	}
	opts, _ := req.Body["options"].(map[string]any)
	if opts["voice"] != "Ryan" {
		t.Errorf("Expected options to be forwarded, got %v", req.Body["options"])
	}
}

func TestHomeAssistant_SpeakLegacyService(t *testing.T) {
	ha, fake := newTestHA(t, "secret")

	err := ha.Speak(context.Background(), ttypes.SpeakRequest{
		Target:  "media_player.living",
		Message: "hi",
		Service: "tts.google_translate_say",
	})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	req := fake.last()
	if req.Path != "/api/services/tts/google_translate_say" {
		t.Errorf("Expected legacy service path, got %s", req.Path)
	}
	if req.Body["entity_id"] != "media_player.living" {
		t.Errorf("Expected target as entity_id, got %v", req.Body["entity_id"])
	}
	if _, ok := req.Body["media_player_entity_id"]; ok {
		t.Error("Legacy services must not receive media_player_entity_id")
	}
	if _, ok := req.Body["language"]; ok {
		t.Error("Expected no language when none was given")
	}
}

func TestHomeAssistant_MediaPlayerCalls(t *testing.T) {
	ha, fake := newTestHA(t, "secret")
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		path string
		key  string
		want any
	}{
		{"volume", func() error { return ha.SetVolume(ctx, "media_player.kitchen", 0.25) }, "/api/services/media_player/volume_set", "volume_level", 0.25},
		{"stop", func() error { return ha.StopPlayback(ctx, "media_player.kitchen") }, "/api/services/media_player/media_stop", "entity_id", "media_player.kitchen"},
		{"media", func() error { return ha.PlayMedia(ctx, "media_player.kitchen", "media-source://chime.mp3") }, "/api/services/media_player/play_media", "media_content_id", "media-source://chime.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("call failed: %v", err)
			}
			req := fake.last()
			if req.Path != tt.path {
				t.Errorf("Expected path %s, got %s", tt.path, req.Path)
			}
			if req.Body[tt.key] != tt.want {
				t.Errorf("Expected %s=%v, got %v", tt.key, tt.want, req.Body[tt.key])
			}
		})
	}
}

func TestHomeAssistant_ReadState(t *testing.T) {
	ha, _ := newTestHA(t, "secret")
	ctx := context.Background()

	st, err := ha.ReadState(ctx, "media_player.kitchen")
	if err != nil {
		t.Fatalf("ReadState failed: %v", err)
	}
	if st.State != ttypes.PlaybackPlaying {
		t.Errorf("Expected playing, got %s", st.State)
	}
	if st.Volume == nil || *st.Volume != 0.6 {
		t.Errorf("Expected volume 0.6, got %v", st.Volume)
	}

	st, err = ha.ReadState(ctx, "media_player.garage")
	if err != nil {
		t.Fatalf("ReadState failed: %v", err)
	}
	if st.State != ttypes.PlaybackOff || st.Volume != nil {
		t.Errorf("Expected off with unknown volume, got %+v", st)
	}

	_, err = ha.ReadState(ctx, "media_player.missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("Expected 404 APIError, got %v", err)
	}
}

func TestHomeAssistant_Unauthorized(t *testing.T) {
	ha, fake := newTestHA(t, "wrong")

	err := ha.Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Expected 401 APIError, got %v", err)
	}
	if got := fake.last().Auth; got != "Bearer wrong" {
		t.Errorf("Expected bearer token header, got %q", got)
	}
}

func TestSplitService(t *testing.T) {
	tests := []struct {
		in, domain, service string
	}{
		{"tts.speak", "tts", "speak"},
		{"tts.cloud_say", "tts", "cloud_say"},
		{"", "tts", "speak"},
		{"nodot", "tts", "speak"},
		{".speak", "tts", "speak"},
	}
	for _, tt := range tests {
		d, s := splitService(tt.in)
		if d != tt.domain || s != tt.service {
			t.Errorf("splitService(%q): expected %s.%s, got %s.%s", tt.in, tt.domain, tt.service, d, s)
		}
	}
}
