package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"
)

const (
	gttsMaxText       = 5000
	gttsFetchTimeout  = 30 * time.Second
	gttsDecodeTimeout = 15 * time.Second
)

// GTTSEngine synthesizes through Google Translate TTS. gtts-cli fetches an
// MP3 which ffmpeg decodes to PCM.
type GTTSEngine struct {
	gttsBinary   string
	ffmpegBinary string
	slow         bool
	sampleRate   int
	limiter      *rate.Limiter
}

// NewGTTSEngine creates a gTTS engine. Requests are rate limited so the
// service does not block the host.
func NewGTTSEngine(cfg tts.GTTSConfig, sampleRate int) *GTTSEngine {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &GTTSEngine{
		gttsBinary:   "gtts-cli",
		ffmpegBinary: "ffmpeg",
		slow:         cfg.Slow,
		sampleRate:   sampleRate,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Synthesize converts text to PCM. Recognized options: slow, tld and speed
// (ffmpeg atempo, clamped to 0.5-2.0).
func (e *GTTSEngine) Synthesize(ctx context.Context, text, lang string, options map[string]any) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text cannot be empty")
	}
	if len(text) > gttsMaxText {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(text), gttsMaxText)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	mp3, err := runCommand(ctx, gttsFetchTimeout, nil, e.gttsBinary, e.fetchArgs(text, lang, options)...)
	if err != nil {
		return nil, fmt.Errorf("MP3 generation failed: %w", err)
	}

	raw, err := runCommand(ctx, gttsDecodeTimeout, bytes.NewReader(mp3), e.ffmpegBinary, e.decodeArgs(options)...)
	if err != nil {
		return nil, fmt.Errorf("MP3 to PCM conversion failed: %w", err)
	}
	return checkPCM(raw)
}

func (e *GTTSEngine) fetchArgs(text, lang string, options map[string]any) []string {
	args := []string{text, "-l", gttsLanguage(lang)}

	slow := e.slow
	if v, ok := optBool(options, "slow"); ok {
		slow = v
	}
	if slow {
		args = append(args, "--slow")
	}
	if tld, ok := optString(options, "tld"); ok {
		args = append(args, "--tld", tld)
	}
	return append(args, "-o", "-")
}

func (e *GTTSEngine) decodeArgs(options map[string]any) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", "1",
	}
	if speed, ok := optFloat(options, "speed"); ok && speed != 1 {
		speed = min(max(speed, 0.5), 2.0)
		args = append(args, "-filter:a", "atempo="+strconv.FormatFloat(speed, 'f', 2, 64))
	}
	return append(args, "pipe:1")
}

// gttsLanguage reduces a BCP 47 tag to the base language gtts-cli expects.
func gttsLanguage(tag string) string {
	if tag == "" {
		return "en"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	base, _ := t.Base()
	return base.String()
}

// GetInfo returns engine capabilities and configuration.
func (e *GTTSEngine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:        "gtts",
		SampleRate:  e.sampleRate,
		Channels:    1,
		BitDepth:    16,
		MaxTextSize: gttsMaxText,
		IsOnline:    true,
	}
}

// Validate checks that gtts-cli and ffmpeg are on PATH.
func (e *GTTSEngine) Validate() error {
	return tts.CheckLocalEngine(tts.LocalConfig{Engine: "gtts"}).Err
}

// Close releases resources held by the engine.
func (e *GTTSEngine) Close() error { return nil }

var _ ttypes.Synthesizer = (*GTTSEngine)(nil)
