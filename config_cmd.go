package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# control API address used by the daemon and the CLI
listen: "127.0.0.1:8765"
# single-instance lock (defaults next to the log file)
# lock_file: "/path/to/ttsproxy.lock"

# Home Assistant REST backend; the token may also come from TTSPROXY_HA_TOKEN
homeassistant:
  # url: "http://homeassistant.local:8123"
  # token: "long-lived-access-token"
  timeout: "10s"

# Built-in speaker output, addressed by its name as an instance target
local:
  enabled: false
  name: "local"
  # piper, gtts or mock
  engine: "piper"
  sample_rate: 44100
  piper:
    binary: "piper"
    # model_path: "~/.local/share/piper/en_US-amy-medium.onnx"
    timeout: "30s"
  gtts:
    slow: false
    requests_per_minute: 30
  cache:
    # dir: "/path/to/cache"
    memory_mb: 32
    disk_mb: 256

# One announcement queue per instance
instances:
  - name: "living_room"
    target: "media_player.living_room"
    tts_service: "tts.speak"
    tts_entity: "tts.piper"
    default_language: "en"
    # default_options: { voice: "amy" }
    quiet_hours: "22:00-07:00"
    day_volume: 0.45
    night_volume: 0.20
    pre_roll_ms: 150
    # pre_roll_sound: "media-source://media_source/local/chime.mp3"
    post_grace_ms: 250
    duck_enable: true
    duck_targets: []
    duck_volume: 0.15
    # state or timer
    detect_done_mode: "state"
    max_speech_seconds: 45
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the ttsproxy config file",
	Long:    paragraph(fmt.Sprintf("\n%s the ttsproxy config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created. A running daemon picks up changes on save.", keyword("Edit"))),
	Example: paragraph("ttsproxy config\nttsproxy config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("ttsproxy", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		// The file may hold a token.
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
