// Package audio plays raw 16-bit PCM on the local sound device through
// oto/v3. It backs the "local" output, where announcements are synthesized
// in-process instead of being handed to a media server.
package audio
