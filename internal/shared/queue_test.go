package shared

import (
	"sync"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New()
	q.Enqueue(10)
	q.Enqueue(20)
	q.Enqueue(30)

	for _, want := range []int32{10, 20, 30} {
		got, ok := q.Dequeue()
		assert(t, ok, "expected a value, queue reported empty")
		assert(t, got == want, "got %d, want %d", got, want)
	}
	_, ok := q.Dequeue()
	assert(t, !ok, "expected the 4th dequeue to report empty")
}

func TestDequeueEmptyQueue(t *testing.T) {
	q := New()
	_, ok := q.Dequeue()
	assert(t, !ok, "expected an empty queue to report false")
}

func TestIsEmpty(t *testing.T) {
	q := New()
	assert(t, q.IsEmpty(), "new queue should be empty")
	q.Enqueue(1)
	assert(t, !q.IsEmpty(), "queue with one element should not be empty")
	q.Dequeue()
	assert(t, q.IsEmpty(), "queue should be empty again after the only dequeue")
}

// TestConcurrentProducersPreserveFIFOPerProducer exercises the CAS retry
// loops under real contention, even though the emulated machine itself
// never runs two processes at once: each producer's own values must come
// out in the order it enqueued them, though producers may interleave with
// each other.
func TestConcurrentProducersPreserveFIFOPerProducer(t *testing.T) {
	const producers = 4
	const perProducer = 200

	q := New()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(int32(p*perProducer + i))
			}
		}(p)
	}
	wg.Wait()

	lastSeen := make([]int32, producers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}
	total := producers * perProducer
	for i := 0; i < total; i++ {
		v, ok := q.Dequeue()
		assert(t, ok, "dequeue %d: queue emptied early", i)
		p := v / perProducer
		assert(t, v > lastSeen[p], "producer %d: value %d out of order after %d", p, v, lastSeen[p])
		lastSeen[p] = v
	}
	_, ok := q.Dequeue()
	assert(t, !ok, "expected queue to be empty after draining all %d values", total)
}

func TestRegionBumpNeverOverlaps(t *testing.T) {
	r := NewRegion()
	a := r.Bump(16)
	b := r.Bump(32)
	c := r.Bump(8)
	assert(t, b == a+16, "got b=%d, want %d", b, a+16)
	assert(t, c == b+32, "got c=%d, want %d", c, b+32)
}
