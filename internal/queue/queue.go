package queue

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// ErrQueueClosed is returned when operations are attempted on a closed queue
var ErrQueueClosed = errors.New("queue is closed")

// AnnouncementQueue holds pending announcements ordered by (-priority, sequence).
// Higher priority always comes first; equal priorities are strictly FIFO.
// All mutations share one lock so that a sequence number is assigned in the
// same critical section as the insertion it orders.
type AnnouncementQueue struct {
	items   priorityQueue
	nextSeq uint64

	mu     sync.Mutex
	notify chan struct{}
	done   chan struct{}
	closed bool

	stats Stats
}

// Stats tracks queue activity for observability.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// New creates an empty announcement queue.
func New() *AnnouncementQueue {
	q := &AnnouncementQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(&q.items)
	return q
}

// Enqueue inserts an announcement preserving (-priority, sequence) order.
func (q *AnnouncementQueue) Enqueue(a ttypes.Announcement) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.pushLocked(a)
	return nil
}

// Interrupt atomically discards every pending announcement and inserts a in
// their place. The discarded items are returned in the order they would have
// played.
func (q *AnnouncementQueue) Interrupt(a ttypes.Announcement) ([]ttypes.Announcement, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	dropped := q.drainLocked()
	q.pushLocked(a)
	return dropped, nil
}

// Dequeue removes and returns the head of the queue, blocking while the
// queue is empty. It returns ctx.Err() when ctx is cancelled and
// ErrQueueClosed once the queue is closed.
//
// Callers that must record the item under their own lock at the moment it
// leaves the queue use Wait and TryDequeue instead.
func (q *AnnouncementQueue) Dequeue(ctx context.Context) (ttypes.Announcement, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ttypes.Announcement{}, ErrQueueClosed
		}
		if q.items.Len() > 0 {
			a := q.popLocked()
			// Pass the wake-up along if a signal was coalesced.
			if q.items.Len() > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return a, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ttypes.Announcement{}, ctx.Err()
		case <-q.done:
			return ttypes.Announcement{}, ErrQueueClosed
		case <-q.notify:
		}
	}
}

// Wait blocks until at least one announcement is pending. It does not remove
// anything; pair it with TryDequeue when the caller must take the item
// under its own lock.
func (q *AnnouncementQueue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		pending := q.items.Len() > 0
		q.mu.Unlock()
		if pending {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrQueueClosed
		case <-q.notify:
		}
	}
}

// TryDequeue removes and returns the head without blocking.
func (q *AnnouncementQueue) TryDequeue() (ttypes.Announcement, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.items.Len() == 0 {
		return ttypes.Announcement{}, false
	}
	return q.popLocked(), true
}

// Clear removes all pending announcements and returns how many were dropped.
// An announcement already handed out by Dequeue is not affected.
func (q *AnnouncementQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.drainLocked())
}

// Size returns the number of pending announcements.
func (q *AnnouncementQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}

// Snapshot returns the pending announcements in play order.
func (q *AnnouncementQueue) Snapshot() []ttypes.Announcement {
	q.mu.Lock()
	entries := make([]*queueItem, len(q.items))
	copy(entries, q.items)
	q.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].before(entries[j]) })

	out := make([]ttypes.Announcement, len(entries))
	for i, e := range entries {
		out[i] = e.announcement
	}
	return out
}

// Stats returns current queue statistics.
func (q *AnnouncementQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = q.items.Len()
	return stats
}

// Close shuts the queue down and wakes any blocked Dequeue.
func (q *AnnouncementQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

func (q *AnnouncementQueue) pushLocked(a ttypes.Announcement) {
	q.nextSeq++
	heap.Push(&q.items, &queueItem{
		announcement: a,
		priority:     a.Priority,
		sequence:     q.nextSeq,
	})

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if n := q.items.Len(); n > q.stats.PeakSize {
		q.stats.PeakSize = n
	}

	q.signal()
}

func (q *AnnouncementQueue) popLocked() ttypes.Announcement {
	item := heap.Pop(&q.items).(*queueItem)
	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	return item.announcement
}

func (q *AnnouncementQueue) drainLocked() []ttypes.Announcement {
	dropped := make([]ttypes.Announcement, 0, q.items.Len())
	for q.items.Len() > 0 {
		dropped = append(dropped, heap.Pop(&q.items).(*queueItem).announcement)
	}
	q.stats.TotalDropped += int64(len(dropped))
	return dropped
}

// signal wakes one waiting consumer without blocking.
func (q *AnnouncementQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Priority queue implementation using a heap
type queueItem struct {
	announcement ttypes.Announcement
	priority     int
	sequence     uint64
	index        int // Index in the heap
}

// before orders by priority descending, then sequence ascending.
func (a *queueItem) before(b *queueItem) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.sequence < b.sequence
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool { return pq[i].before(pq[j]) }

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	*pq = old[0 : n-1]
	return item
}
