// Package daemon hosts the long-running side of ttsproxy: it owns one
// scheduler per configured instance, serves the HTTP control API, reloads
// instances when the config file changes and holds the single-instance
// lock. Client talks to a running daemon over the same API.
package daemon
