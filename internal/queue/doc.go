// Package queue holds pending announcements for a single output instance.
// Ordering is strict priority with FIFO tie-break, and every mutation is
// serialized so that concurrent callers never lose items.
package queue
