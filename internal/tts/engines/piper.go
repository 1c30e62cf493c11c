package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

const (
	piperMaxText        = 5000
	piperDefaultRate    = 22050
	piperDefaultTimeout = 30 * time.Second
)

// PiperEngine synthesizes with a fresh piper process per message. The text
// is attached to stdin before the process starts.
type PiperEngine struct {
	binary     string
	modelPath  string
	configPath string
	modelRate  int
	outputRate int
	timeout    time.Duration
}

// NewPiperEngine creates a Piper engine that outputs PCM at outputRate.
// The model's own sample rate is read from its .onnx.json config.
func NewPiperEngine(cfg tts.PiperConfig, outputRate int) (*PiperEngine, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("piper model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = strings.TrimSuffix(cfg.ModelPath, filepath.Ext(cfg.ModelPath)) + ".onnx.json"
	}

	e := &PiperEngine{
		binary:     cfg.Binary,
		modelPath:  cfg.ModelPath,
		configPath: configPath,
		modelRate:  readModelRate(configPath),
		outputRate: outputRate,
		timeout:    cfg.Timeout,
	}
	if e.binary == "" {
		e.binary = "piper"
	}
	if e.timeout <= 0 {
		e.timeout = piperDefaultTimeout
	}
	if e.outputRate <= 0 {
		e.outputRate = e.modelRate
	}
	return e, nil
}

// readModelRate returns the sample rate from a piper voice config, or the
// common 22050 Hz when the file is missing or unreadable.
func readModelRate(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return piperDefaultRate
	}
	var voice struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &voice); err != nil || voice.Audio.SampleRate <= 0 {
		return piperDefaultRate
	}
	return voice.Audio.SampleRate
}

// Synthesize runs piper on text. Recognized options: speed (inverse of
// length_scale), length_scale, noise_scale, noise_w and speaker.
// Piper voices are single-language, so language is ignored.
func (e *PiperEngine) Synthesize(ctx context.Context, text, _ string, options map[string]any) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text cannot be empty")
	}
	if len(text) > piperMaxText {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(text), piperMaxText)
	}

	raw, err := runCommand(ctx, e.timeout, strings.NewReader(text), e.binary, e.args(options)...)
	if err != nil {
		return nil, err
	}
	pcm, err := checkPCM(raw)
	if err != nil {
		return nil, err
	}
	return Resample(pcm, e.modelRate, e.outputRate), nil
}

func (e *PiperEngine) args(options map[string]any) []string {
	args := []string{
		"--model", e.modelPath,
		"--config", e.configPath,
		"--output-raw",
	}

	lengthScale, ok := optFloat(options, "length_scale")
	if !ok {
		if speed, ok := optFloat(options, "speed"); ok && speed > 0 {
			lengthScale = 1 / speed
		}
	}
	if lengthScale > 0 {
		args = append(args, "--length-scale", strconv.FormatFloat(lengthScale, 'f', 2, 64))
	}
	if v, ok := optFloat(options, "noise_scale"); ok {
		args = append(args, "--noise-scale", strconv.FormatFloat(v, 'f', 3, 64))
	}
	if v, ok := optFloat(options, "noise_w"); ok {
		args = append(args, "--noise-w", strconv.FormatFloat(v, 'f', 3, 64))
	}
	if v, ok := optString(options, "speaker"); ok {
		args = append(args, "--speaker", v)
	}
	return args
}

// GetInfo returns engine capabilities and configuration.
func (e *PiperEngine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:        "piper",
		SampleRate:  e.outputRate,
		Channels:    1,
		BitDepth:    16,
		MaxTextSize: piperMaxText,
		IsOnline:    false,
	}
}

// Validate checks that the binary and model are present.
func (e *PiperEngine) Validate() error {
	check := tts.CheckLocalEngine(tts.LocalConfig{
		Engine: "piper",
		Piper:  tts.PiperConfig{Binary: e.binary, ModelPath: e.modelPath, ConfigPath: e.configPath},
	})
	return check.Err
}

// Close releases resources held by the engine.
func (e *PiperEngine) Close() error { return nil }

var _ ttypes.Synthesizer = (*PiperEngine)(nil)
