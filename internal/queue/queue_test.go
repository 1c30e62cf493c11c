package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

func announcement(id string, priority int) ttypes.Announcement {
	return ttypes.Announcement{ID: id, Message: "message " + id, Priority: priority}
}

func TestAnnouncementQueue_BasicOperations(t *testing.T) {
	q := New()
	defer q.Close()

	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue, got size %d", size)
	}

	if _, ok := q.TryDequeue(); ok {
		t.Error("Expected TryDequeue on an empty queue to return nothing")
	}

	if err := q.Enqueue(announcement("a1", 0)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if size := q.Size(); size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("Dequeued wrong announcement: %v", got.ID)
	}

	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue after dequeue, got size %d", size)
	}
}

func TestAnnouncementQueue_PriorityOrdering(t *testing.T) {
	q := New()
	defer q.Close()

	_ = q.Enqueue(announcement("A", 0))
	_ = q.Enqueue(announcement("B", 5))
	_ = q.Enqueue(announcement("C", 0))
	_ = q.Enqueue(announcement("D", 5))
	_ = q.Enqueue(announcement("E", -1))
	_ = q.Enqueue(announcement("F", 10))

	want := []string{"F", "B", "D", "A", "C", "E"}
	for i, id := range want {
		got, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("Expected item %d, queue was empty", i)
		}
		if got.ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, got.ID)
		}
	}
}

func TestAnnouncementQueue_OrderMatchesSortedKeys(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		q := New()
		type key struct {
			id       string
			priority int
			seq      int
		}
		var keys []key
		for i := 0; i < 50; i++ {
			p := rng.Intn(5) - 2
			id := fmt.Sprintf("r%d-%d", round, i)
			keys = append(keys, key{id: id, priority: p, seq: i})
			if err := q.Enqueue(announcement(id, p)); err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
		}

		sort.SliceStable(keys, func(i, j int) bool {
			if keys[i].priority != keys[j].priority {
				return keys[i].priority > keys[j].priority
			}
			return keys[i].seq < keys[j].seq
		})

		snapshot := q.Snapshot()
		for i, k := range keys {
			if snapshot[i].ID != k.id {
				t.Fatalf("Round %d snapshot position %d: expected %s, got %s", round, i, k.id, snapshot[i].ID)
			}
			got, ok := q.TryDequeue()
			if !ok || got.ID != k.id {
				t.Fatalf("Round %d position %d: expected %s, got %s", round, i, k.id, got.ID)
			}
		}
		_ = q.Close()
	}
}

func TestAnnouncementQueue_Clear(t *testing.T) {
	q := New()
	defer q.Close()

	for i := 0; i < 5; i++ {
		_ = q.Enqueue(announcement(fmt.Sprintf("a%d", i), i))
	}

	inFlight, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if dropped := q.Clear(); dropped != 4 {
		t.Errorf("Expected 4 dropped, got %d", dropped)
	}
	if size := q.Size(); size != 0 {
		t.Errorf("Expected size 0 after clear, got %d", size)
	}
	if inFlight.ID != "a4" {
		t.Errorf("In-flight announcement changed: %s", inFlight.ID)
	}

	stats := q.Stats()
	if stats.TotalDropped != 4 {
		t.Errorf("Expected 4 dropped in stats, got %d", stats.TotalDropped)
	}
	if stats.PeakSize != 5 {
		t.Errorf("Expected peak size 5, got %d", stats.PeakSize)
	}
}

func TestAnnouncementQueue_Interrupt(t *testing.T) {
	q := New()
	defer q.Close()

	_ = q.Enqueue(announcement("A", 0))
	_ = q.Enqueue(announcement("B", 3))

	dropped, err := q.Interrupt(announcement("C", 0))
	if err != nil {
		t.Fatalf("Interrupt failed: %v", err)
	}
	if len(dropped) != 2 || dropped[0].ID != "B" || dropped[1].ID != "A" {
		t.Errorf("Unexpected dropped items: %+v", dropped)
	}

	snapshot := q.Snapshot()
	if len(snapshot) != 1 || snapshot[0].ID != "C" {
		t.Errorf("Expected only C pending, got %+v", snapshot)
	}
}

func TestAnnouncementQueue_RepeatedInterruptsKeepLast(t *testing.T) {
	q := New()
	defer q.Close()

	for i := 0; i < 10; i++ {
		_ = q.Enqueue(announcement(fmt.Sprintf("bg%d", i), i%3))
	}
	for i := 0; i < 7; i++ {
		if _, err := q.Interrupt(announcement(fmt.Sprintf("int%d", i), 0)); err != nil {
			t.Fatalf("Interrupt failed: %v", err)
		}
	}

	if size := q.Size(); size != 1 {
		t.Fatalf("Expected 1 pending, got %d", size)
	}
	got, _ := q.TryDequeue()
	if got.ID != "int6" {
		t.Errorf("Expected last interrupt to remain, got %s", got.ID)
	}
}

func TestAnnouncementQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()
	defer q.Close()

	result := make(chan ttypes.Announcement, 1)
	go func() {
		a, err := q.Dequeue(context.Background())
		if err != nil {
			t.Errorf("Dequeue failed: %v", err)
			return
		}
		result <- a
	}()

	select {
	case <-result:
		t.Fatal("Dequeue should block on empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	_ = q.Enqueue(announcement("late", 0))

	select {
	case a := <-result:
		if a.ID != "late" {
			t.Errorf("Expected late, got %s", a.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up after enqueue")
	}
}

func TestAnnouncementQueue_DequeueCancellation(t *testing.T) {
	q := New()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after cancel")
	}
}

func TestAnnouncementQueue_WaitDoesNotConsume(t *testing.T) {
	q := New()
	defer q.Close()

	waited := make(chan error, 1)
	go func() {
		waited <- q.Wait(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	_ = q.Enqueue(announcement("w", 0))

	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after enqueue")
	}

	if size := q.Size(); size != 1 {
		t.Errorf("Expected item to remain after Wait, got size %d", size)
	}

	// Already pending: returns immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Errorf("Expected immediate return, got %v", err)
	}
}

func TestAnnouncementQueue_Close(t *testing.T) {
	q := New()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after close")
	}

	if err := q.Enqueue(announcement("x", 0)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on enqueue, got %v", err)
	}
}

func TestAnnouncementQueue_ConcurrentEnqueue(t *testing.T) {
	q := New()
	defer q.Close()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(announcement(fmt.Sprintf("p%d-%d", p, i), 0))
			}
		}(p)
	}
	wg.Wait()

	if size := q.Size(); size != producers*perProducer {
		t.Fatalf("Expected %d items, got %d", producers*perProducer, size)
	}

	// Each producer's items must still come out in its own submission order.
	next := make(map[int]int)
	seen := make(map[string]bool)
	for {
		a, ok := q.TryDequeue()
		if !ok {
			break
		}
		if seen[a.ID] {
			t.Fatalf("Duplicate announcement %s", a.ID)
		}
		seen[a.ID] = true

		var p, i int
		if _, err := fmt.Sscanf(a.ID, "p%d-%d", &p, &i); err != nil {
			t.Fatalf("Bad id %s: %v", a.ID, err)
		}
		if i != next[p] {
			t.Fatalf("Producer %d out of order: expected %d, got %d", p, next[p], i)
		}
		next[p]++
	}

	if len(seen) != producers*perProducer {
		t.Errorf("Expected %d unique items, got %d", producers*perProducer, len(seen))
	}
}

func TestAnnouncementQueue_ConcurrentConsumers(t *testing.T) {
	q := New()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const total = 200
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				a, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[a.ID] = true
				done := len(seen) == total
				mu.Unlock()
				if done {
					cancel()
					return
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		_ = q.Enqueue(announcement(fmt.Sprintf("c%d", i), i%4))
	}
	wg.Wait()

	if len(seen) != total {
		t.Errorf("Expected %d consumed, got %d", total, len(seen))
	}
}
