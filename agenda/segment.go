package agenda

import "sync"

// Segment is an owned byte buffer of bounded size. Returning a segment to
// the pool decrements the in-flight counter and wakes any waiter.
type Segment struct {
	Data []byte
	pool *SegmentPool
}

// Resize grows Data to n bytes (reusing the preallocated backing array up
// to its capacity), matching the original's seg->data_.resize(size).
func (s *Segment) Resize(n int) {
	if cap(s.Data) >= n {
		s.Data = s.Data[:n]
		return
	}
	s.Data = make([]byte, n)
}

// Release returns the segment to its pool. Calling Release more than
// once is a programmer error; the invariant that each segment is
// released exactly once is maintained by construction: a download task
// acquires a segment and hands it *by value* to its follow-on write
// task, which alone calls Release.
func (s *Segment) Release() {
	s.pool.release()
}

// SegmentPool is the fixed-capacity byte-buffer allocator: acquire(n)
// blocks until n segments can be reserved without exceeding
// max_in_flight; release wakes all waiters. Grounded on
// agenda.h/agenda.cpp's segment_m_/segment_ready_condition_/
// segments_in_flight_ triad, kept as an independent lock from the task
// queue so a worker can never hold both at once while blocking.
type SegmentPool struct {
	mu          sync.Mutex
	cond        *sync.Cond
	inFlight    int
	maxInFlight int
	segmentSize int
}

// NewSegmentPool creates a pool capped at maxInFlight segments of
// segmentSize bytes each.
func NewSegmentPool(maxInFlight, segmentSize int) *SegmentPool {
	p := &SegmentPool{maxInFlight: maxInFlight, segmentSize: segmentSize}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire blocks until n segments can be reserved without exceeding
// max_in_flight, then returns them reserved as one group.
func (p *SegmentPool) Acquire(n int) []*Segment {
	p.mu.Lock()
	for p.inFlight+n > p.maxInFlight {
		p.cond.Wait()
	}
	p.inFlight += n
	p.mu.Unlock()

	segs := make([]*Segment, n)
	for i := range segs {
		segs[i] = &Segment{Data: make([]byte, 0, p.segmentSize), pool: p}
	}
	return segs
}

// TryAcquire attempts a non-blocking reservation of n segments, used by
// the dispatcher to check claimability without blocking under the queue
// lock.
func (p *SegmentPool) TryAcquire(n int) ([]*Segment, bool) {
	p.mu.Lock()
	if p.inFlight+n > p.maxInFlight {
		p.mu.Unlock()
		return nil, false
	}
	p.inFlight += n
	p.mu.Unlock()

	segs := make([]*Segment, n)
	for i := range segs {
		segs[i] = &Segment{Data: make([]byte, 0, p.segmentSize), pool: p}
	}
	return segs, true
}

func (p *SegmentPool) release() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	p.cond.Broadcast()
}

// InFlight reports the current reservation count, for tests and metrics.
func (p *SegmentPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}
