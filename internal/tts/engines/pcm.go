package engines

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// maxPCMBytes bounds a single synthesis result (about four minutes at 44.1kHz).
const maxPCMBytes = 20 << 20

// Resample converts 16-bit little-endian mono PCM between sample rates using
// linear interpolation.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(pcm) < 4 {
		return pcm
	}

	n := len(pcm) / 2
	in := make([]int16, n)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	outN := int(int64(n) * int64(to) / int64(from))
	out := make([]byte, outN*2)
	ratio := float64(from) / float64(to)
	for i := 0; i < outN; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)

		s := float64(in[j])
		if j+1 < n {
			s += (float64(in[j+1]) - s) * frac
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(s))))
	}
	return out
}

// Silence returns d of silent 16-bit mono PCM.
func Silence(d time.Duration, sampleRate int) []byte {
	samples := int(int64(d) * int64(sampleRate) / int64(time.Second))
	return make([]byte, samples*2)
}

// checkPCM rejects oversized output and drops a trailing odd byte.
func checkPCM(pcm []byte) ([]byte, error) {
	if len(pcm) > maxPCMBytes {
		return nil, fmt.Errorf("audio output too large: %d bytes (max %d)", len(pcm), maxPCMBytes)
	}
	return pcm[:len(pcm)&^1], nil
}

// optFloat reads a numeric option that may arrive as a number or a string.
func optFloat(options map[string]any, key string) (float64, bool) {
	switch v := options[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func optBool(options map[string]any, key string) (bool, bool) {
	switch v := options[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

func optString(options map[string]any, key string) (string, bool) {
	switch v := options[key].(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	default:
		return fmt.Sprint(v), true
	}
}
