package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/dgnsrekt/ttsproxy/internal/daemon"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/spf13/cobra"
)

// speakFlags holds the speak command's flags.
type speakFlags struct {
	instance  string
	target    string
	language  string
	priority  int
	interrupt bool
	volume    float64
	preRollMs int
	options   []string
	clipboard bool
}

var (
	speakOpts speakFlags

	speakCmd = &cobra.Command{
		Use:   "speak [MESSAGE...]",
		Short: "Queue an announcement",
		Long:  paragraph(fmt.Sprintf("\n%s an announcement on a running daemon. The message comes from the arguments, from stdin when piped or given as -, or from the clipboard.", keyword("Queue"))),
		Example: paragraph(`ttsproxy speak "Dinner is ready"
ttsproxy speak --instance kitchen --priority 5 "Timer done"
ttsproxy speak --interrupt --volume 0.8 "Smoke detected"
ttsproxy speak --option voice=amy --option speed=1.2 "Hello"
echo "Build finished" | ttsproxy speak`),
		RunE: runSpeak,
	}
)

func init() {
	f := speakCmd.Flags()
	f.StringVarP(&speakOpts.instance, "instance", "i", "", "instance to queue on (default: by target, else the first)")
	f.StringVarP(&speakOpts.target, "target", "t", "", "output to speak on (default: the instance target)")
	f.StringVarP(&speakOpts.language, "language", "l", "", "language tag (default: the instance language)")
	f.IntVarP(&speakOpts.priority, "priority", "p", 0, "higher plays first")
	f.BoolVar(&speakOpts.interrupt, "interrupt", false, "drop everything pending and stop the current announcement")
	f.Float64Var(&speakOpts.volume, "volume", 0, "volume 0.0-1.0 (default: day/night volume)")
	f.IntVar(&speakOpts.preRollMs, "pre-roll", 0, "pre-roll delay in ms, 0-1000 (default: the instance setting)")
	f.StringArrayVarP(&speakOpts.options, "option", "o", nil, "engine option as key=value (repeatable)")
	f.BoolVarP(&speakOpts.clipboard, "clipboard", "c", false, "speak the clipboard contents")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	var (
		message string
		err     error
	)
	if speakOpts.clipboard {
		message, err = clipboard.ReadAll()
		if err != nil {
			return fmt.Errorf("unable to read clipboard: %w", err)
		}
	} else {
		piped, err := stdinIsPipe()
		if err != nil {
			return err
		}
		message, err = speakMessage(args, os.Stdin, piped)
		if err != nil {
			return err
		}
	}

	req, err := speakOpts.request(message, cmd.Flags().Changed("volume"), cmd.Flags().Changed("pre-roll"))
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	resp, err := newClient().Speak(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s %s\n",
		keyword("Queued"), shortID(resp.ID), bright(resp.Instance),
		faint(fmt.Sprintf("(%s, %d pending)", resp.Target, resp.QueueSize)))
	return nil
}

// speakMessage assembles the message from args, or reads it from stdin
// when args is "-" or empty with a piped stdin.
func speakMessage(args []string, stdin io.Reader, piped bool) (string, error) {
	if (len(args) == 1 && args[0] == "-") || (len(args) == 0 && piped) {
		b, err := io.ReadAll(io.LimitReader(stdin, 32<<10))
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		args = []string{string(b)}
	}

	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return "", tts.ErrEmptyMessage
	}
	return message, nil
}

// request builds the API request. volumeSet and preRollSet report whether
// those flags were given, since zero is a valid value for both.
func (f speakFlags) request(message string, volumeSet, preRollSet bool) (daemon.SpeakRequest, error) {
	opts, err := tts.ParseOptionPairs(f.options)
	if err != nil {
		return daemon.SpeakRequest{}, err
	}

	req := daemon.SpeakRequest{
		Message:   message,
		Instance:  f.instance,
		Target:    f.target,
		Language:  f.language,
		Priority:  f.priority,
		Interrupt: f.interrupt,
	}
	if len(opts) > 0 {
		req.Options = opts
	}
	if volumeSet {
		if f.volume < 0 || f.volume > 1 {
			return req, fmt.Errorf("--volume must be between 0 and 1, got %v", f.volume)
		}
		v := f.volume
		req.VolumeOverride = &v
	}
	if preRollSet {
		p := f.preRollMs
		req.PreRollMs = &p
	}
	return req, nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
