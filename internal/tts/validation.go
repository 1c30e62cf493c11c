package tts

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EngineCheck is the result of checking a local synthesis engine.
type EngineCheck struct {
	// Engine is the checked engine name
	Engine string

	// Available indicates if the engine can be used
	Available bool

	// Err contains the reason the engine is unavailable
	Err error

	// Guidance provides setup instructions when the check failed
	Guidance string

	// Details contains paths and notes discovered during the check
	Details map[string]string
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// CheckLocalEngine verifies that the configured local engine's binaries and
// model files are present. It does not run a test synthesis.
func CheckLocalEngine(cfg LocalConfig) *EngineCheck {
	check := &EngineCheck{
		Engine:  cfg.Engine,
		Details: make(map[string]string),
	}

	switch cfg.Engine {
	case "piper":
		checkPiper(cfg.Piper, check)
	case "gtts":
		checkGTTS(check)
	case "mock":
		check.Available = true
	default:
		check.Err = fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, cfg.Engine)
		check.Guidance = "Supported engines: piper, gtts, mock"
	}

	return check
}

func checkPiper(cfg PiperConfig, check *EngineCheck) {
	binary := cfg.Binary
	if binary == "" {
		binary = "piper"
	}

	path, err := lookPath(binary)
	if err != nil {
		check.Err = fmt.Errorf("piper not found: %w", err)
		check.Guidance = piperInstallGuidance
		return
	}
	check.Details["binary_path"] = path

	if cfg.ModelPath == "" {
		check.Err = fmt.Errorf("piper model path not configured")
		check.Guidance = piperModelGuidance
		return
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		check.Err = fmt.Errorf("model file not accessible: %w", err)
		check.Guidance = piperModelGuidance
		return
	}
	check.Details["model_path"] = cfg.ModelPath

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = strings.TrimSuffix(cfg.ModelPath, filepath.Ext(cfg.ModelPath)) + ".onnx.json"
	}
	if _, err := os.Stat(configPath); err == nil {
		check.Details["config_path"] = configPath
	}

	check.Available = true
}

func checkGTTS(check *EngineCheck) {
	for _, bin := range []string{"gtts-cli", "ffmpeg"} {
		path, err := lookPath(bin)
		if err != nil {
			check.Err = fmt.Errorf("%s not found: %w", bin, err)
			check.Guidance = gttsInstallGuidance
			return
		}
		check.Details[bin] = path
	}
	check.Available = true
}

const piperInstallGuidance = `Piper TTS is not installed. To install:

1. Download Piper from: https://github.com/rhasspy/piper/releases
2. Put the piper binary on PATH, or set local.piper.binary in ttsproxy.yml
3. Download a voice model from: https://github.com/rhasspy/piper/blob/master/VOICES.md`

const piperModelGuidance = `Piper model not found. To configure:

1. Download a voice (.onnx and .onnx.json), for example:
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_US/amy/medium/en_US-amy-medium.onnx
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_US/amy/medium/en_US-amy-medium.onnx.json

2. Set the model path in ttsproxy.yml:
   local:
     engine: piper
     piper:
       model_path: ~/.local/share/piper/en_US-amy-medium.onnx`

const gttsInstallGuidance = `The gtts engine needs gtts-cli and ffmpeg on PATH:

   pipx install gtts
   sudo apt install ffmpeg    # or: brew install ffmpeg

gTTS requires an internet connection.`
