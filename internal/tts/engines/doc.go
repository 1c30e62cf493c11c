// Package engines contains the local synthesis engines behind the "local"
// output: Piper (offline), gTTS (online, via gtts-cli and ffmpeg) and a mock
// used in tests and dry runs. Every engine returns 16-bit mono PCM at the
// sample rate of the local player.
package engines
