// Package output implements the platform the scheduler talks to: a Home
// Assistant REST client for media players, a local output that synthesizes
// in-process and plays through the sound device, and a Router that picks
// between them by target id.
package output
