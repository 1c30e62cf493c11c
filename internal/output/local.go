package output

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/tts/engines"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// chunkGap is the pause between synthesized chunks.
const chunkGap = 100 * time.Millisecond

// Local renders announcements with a local engine and plays them on the
// sound device. It answers to a single target name.
type Local struct {
	name   string
	engine ttypes.Synthesizer
	player ttypes.AudioPlayer
	parser *tts.MessageParser
	logger *log.Logger

	// Serializes rendering so a late Speak cannot overwrite a newer one.
	mu sync.Mutex
}

// NewLocal creates a local output called name.
func NewLocal(name string, engine ttypes.Synthesizer, player ttypes.AudioPlayer, logger *log.Logger) *Local {
	if logger == nil {
		logger = log.Default()
	}
	return &Local{
		name:   name,
		engine: engine,
		player: player,
		parser: tts.NewMessageParser(),
		logger: logger,
	}
}

// Name returns the target id this output answers to.
func (l *Local) Name() string { return l.name }

// Speak synthesizes the message chunk by chunk and starts playback. It
// returns once audio has started, not when it ends.
func (l *Local) Speak(ctx context.Context, req ttypes.SpeakRequest) error {
	chunks := l.parser.Chunks(req.Message)
	if len(chunks) == 0 {
		return tts.ErrEmptyMessage
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	gap := engines.Silence(chunkGap, l.engine.GetInfo().SampleRate)

	var pcm []byte
	for i, chunk := range chunks {
		audio, err := l.engine.Synthesize(ctx, chunk, req.Language, req.Options)
		if err != nil {
			return fmt.Errorf("synthesis failed: %w", err)
		}
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, audio...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.logger.Debug("Playing synthesized audio", "chunks", len(chunks), "bytes", len(pcm))
	return l.player.Play(pcm)
}

// SetVolume sets the player volume.
func (l *Local) SetVolume(_ context.Context, _ string, level float64) error {
	return l.player.SetVolume(level)
}

// StopPlayback stops the player.
func (l *Local) StopPlayback(_ context.Context, _ string) error {
	return l.player.Stop()
}

// PlayMedia plays a 16-bit PCM WAV file, such as a chime, from disk.
func (l *Local) PlayMedia(_ context.Context, _ string, mediaID string) error {
	data, err := os.ReadFile(strings.TrimPrefix(mediaID, "file://"))
	if err != nil {
		return err
	}
	pcm, rate, err := decodeWAV(data)
	if err != nil {
		return fmt.Errorf("%s: %w", mediaID, err)
	}
	return l.player.Play(engines.Resample(pcm, rate, l.engine.GetInfo().SampleRate))
}

// ReadState reports playing while the player has audio left.
func (l *Local) ReadState(_ context.Context, _ string) (ttypes.PlaybackStatus, error) {
	v := l.player.GetVolume()
	st := ttypes.PlaybackIdle
	if l.player.IsPlaying() {
		st = ttypes.PlaybackPlaying
	}
	return ttypes.PlaybackStatus{State: st, Volume: &v}, nil
}

// Close releases the engine and the player.
func (l *Local) Close() error {
	return errors.Join(l.player.Close(), l.engine.Close())
}

var errBadWAV = errors.New("not a 16-bit mono PCM WAV file")

// decodeWAV returns the sample data and rate of a 16-bit mono PCM WAV.
func decodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, errBadWAV
	}

	var rate int
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, errBadWAV
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels := binary.LittleEndian.Uint16(data[body+2:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, 0, errBadWAV
			}
			rate = int(binary.LittleEndian.Uint32(data[body+4:]))
		case "data":
			if rate == 0 {
				return nil, 0, errBadWAV
			}
			return data[body : body+size], rate, nil
		}

		// Chunks are word aligned.
		off = body + size + size%2
	}
	return nil, 0, errBadWAV
}

var _ ttypes.Output = (*Local)(nil)
