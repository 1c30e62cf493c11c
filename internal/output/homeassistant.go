package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// HomeAssistant drives media players through the Home Assistant REST API.
type HomeAssistant struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *log.Logger
}

// NewHomeAssistant creates a client for cfg. Every request is bounded by
// cfg.Timeout in addition to the caller's context.
func NewHomeAssistant(cfg tts.HomeAssistantConfig, logger *log.Logger) *HomeAssistant {
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HomeAssistant{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Speak calls the configured TTS service. The modern tts.speak service
// takes the media player as media_player_entity_id and the TTS engine as
// entity_id; legacy per-platform services take the player as entity_id.
func (h *HomeAssistant) Speak(ctx context.Context, req ttypes.SpeakRequest) error {
	domain, service := splitService(req.Service)

	data := map[string]any{"message": req.Message}
	if domain == "tts" && service == "speak" {
		data["media_player_entity_id"] = req.Target
		if req.Engine != "" {
			data["entity_id"] = req.Engine
		}
	} else {
		data["entity_id"] = req.Target
	}
	if req.Language != "" {
		data["language"] = req.Language
	}
	if len(req.Options) > 0 {
		data["options"] = req.Options
	}

	return h.callService(ctx, domain, service, data)
}

// SetVolume calls media_player.volume_set.
func (h *HomeAssistant) SetVolume(ctx context.Context, target string, level float64) error {
	return h.callService(ctx, "media_player", "volume_set", map[string]any{
		"entity_id":    target,
		"volume_level": level,
	})
}

// StopPlayback calls media_player.media_stop.
func (h *HomeAssistant) StopPlayback(ctx context.Context, target string) error {
	return h.callService(ctx, "media_player", "media_stop", map[string]any{"entity_id": target})
}

// PlayMedia calls media_player.play_media with a music content type.
func (h *HomeAssistant) PlayMedia(ctx context.Context, target, mediaID string) error {
	return h.callService(ctx, "media_player", "play_media", map[string]any{
		"entity_id":          target,
		"media_content_id":   mediaID,
		"media_content_type": "music",
	})
}

// haState is the subset of /api/states/{entity} the scheduler needs.
type haState struct {
	State      string `json:"state"`
	Attributes struct {
		VolumeLevel *float64 `json:"volume_level"`
	} `json:"attributes"`
}

// ReadState reads the entity state and volume.
func (h *HomeAssistant) ReadState(ctx context.Context, target string) (ttypes.PlaybackStatus, error) {
	var st haState
	if err := h.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(target), nil, &st); err != nil {
		return ttypes.PlaybackStatus{State: ttypes.PlaybackUnknown}, err
	}
	return ttypes.PlaybackStatus{
		State:  ttypes.ParsePlaybackState(st.State),
		Volume: st.Attributes.VolumeLevel,
	}, nil
}

// Ping checks that the API is reachable and the token is accepted.
func (h *HomeAssistant) Ping(ctx context.Context) error {
	return h.do(ctx, http.MethodGet, "/api/", nil, nil)
}

func (h *HomeAssistant) callService(ctx context.Context, domain, service string, data map[string]any) error {
	h.logger.Debug("Calling service", "service", domain+"."+service, "entity", data["entity_id"])
	return h.do(ctx, http.MethodPost, "/api/services/"+domain+"/"+service, data, nil)
}

func (h *HomeAssistant) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from Home Assistant.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("home assistant returned %d", e.Status)
	}
	return fmt.Sprintf("home assistant returned %d: %s", e.Status, e.Body)
}

// splitService splits "domain.service", falling back to tts.speak.
func splitService(s string) (string, string) {
	domain, service, ok := strings.Cut(s, ".")
	if !ok || domain == "" || service == "" {
		return "tts", "speak"
	}
	return domain, service
}

var _ ttypes.Output = (*HomeAssistant)(nil)
