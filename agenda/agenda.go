// Package agenda implements a class-aware task scheduler: bounded
// in-flight memory segments, cooperative capacity borrowing, retry and
// backoff, and progress accounting.
package agenda

import (
	"fmt"
	"os"
	"sync"
	"time"

	"es3/internal/es3err"
	"es3/internal/logging"
	"es3/ratelimit"
)

type entry struct {
	task Task
	seq  uint64
}

// Agenda is the task queue + worker pool + dispatch policy. Two locks
// guard its state: mu covers the queue, per-class
// in-use counts, and working count; statsMu covers submitted/done/failed
// and the named byte counters, kept separate so progress reads never
// stall schedulers.
type Agenda struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[int]map[Class][]entry // segment_need -> class -> ordered entries
	limits  map[Class]int
	inUse   map[Class]int
	working int
	nextSeq uint64

	pool *SegmentPool

	statsMu      sync.Mutex
	numSubmitted uint64
	numDone      uint64
	numFailed    uint64
	stats        map[string]uint64

	quiet      bool
	finalQuiet bool
	startTime  time.Time

	// Limiter throttles segment read/write throughput across every task
	// using this Agenda's segments. Nil (the default from New) means
	// unlimited; callers set it after New when --bandwidth-limit is
	// configured.
	Limiter *ratelimit.Limiter
}

// Limits configures per-class worker counts.
type Limits struct {
	Unbound  int
	CPUBound int
	IOBound  int
}

// New creates an Agenda with the given per-class limits, segment pool
// sizing, and progress/epilogue suppression flags.
func New(limits Limits, segmentSize, maxSegmentsInFlight int, quiet, finalQuiet bool) *Agenda {
	a := &Agenda{
		tasks: make(map[int]map[Class][]entry),
		limits: map[Class]int{
			Unbound:  limits.Unbound,
			CPUBound: limits.CPUBound,
			IOBound:  limits.IOBound,
		},
		inUse:      make(map[Class]int),
		pool:       NewSegmentPool(maxSegmentsInFlight, segmentSize),
		stats:      make(map[string]uint64),
		quiet:      quiet,
		finalQuiet: finalQuiet,
		startTime:  time.Now(),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// SegmentSize returns the configured segment size in bytes.
func (a *Agenda) SegmentSize() int { return a.pool.segmentSize }

// Schedule inserts task into the bucket (segment_need, class, ordinal),
// increments the submitted count, and wakes one worker.
func (a *Agenda) Schedule(task Task) {
	a.mu.Lock()
	need := task.SegmentNeed()
	class := task.Class()
	if a.tasks[need] == nil {
		a.tasks[need] = make(map[Class][]entry)
	}
	a.nextSeq++
	e := entry{task: task, seq: a.nextSeq}
	bucket := a.tasks[need][class]
	i := 0
	for i < len(bucket) && bucket[i].task.Ordinal() <= task.Ordinal() {
		i++
	}
	bucket = append(bucket, entry{})
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = e
	a.tasks[need][class] = bucket
	a.cond.Signal()
	a.mu.Unlock()

	a.statsMu.Lock()
	a.numSubmitted++
	a.statsMu.Unlock()
}

// claimTask scans buckets in ascending segment_need order, classes in
// (Unbound, CPUBound, IOBound) order, and ordinals ascending within a
// class, picking the first task whose class has capacity (or is Unbound,
// which may always borrow) and whose segment need can be reserved
// without blocking. Returns (nil, nil) when the queue is
// empty and no work remains, signaling the worker to exit.
func (a *Agenda) claimTask() (Task, []*Segment) {
	a.mu.Lock()
	for {
		needs := sortedNeeds(a.tasks)
		for _, need := range needs {
			byClass := a.tasks[need]
			for _, class := range classOrder {
				bucket := byClass[class]
				if len(bucket) == 0 {
					continue
				}
				eligible := class == Unbound || a.inUse[class] < a.limits[class]
				if !eligible {
					continue
				}
				for i, e := range bucket {
					var segs []*Segment
					if need > 0 {
						var ok bool
						segs, ok = a.pool.TryAcquire(need)
						if !ok {
							continue
						}
					}
					byClass[class] = append(bucket[:i:i], bucket[i+1:]...)
					a.tasks[need][class] = byClass[class]
					a.working++
					a.inUse[class]++
					a.mu.Unlock()
					return e.task, segs
				}
			}
		}

		if a.totalQueued() == 0 && a.working == 0 {
			a.mu.Unlock()
			return nil, nil
		}
		a.cond.Wait()
	}
}

func (a *Agenda) totalQueued() int {
	n := 0
	for _, byClass := range a.tasks {
		for _, bucket := range byClass {
			n += len(bucket)
		}
	}
	return n
}

func sortedNeeds(tasks map[int]map[Class][]entry) []int {
	needs := make([]int, 0, len(tasks))
	for n := range tasks {
		needs = append(needs, n)
	}
	for i := 1; i < len(needs); i++ {
		for j := i; j > 0 && needs[j-1] > needs[j]; j-- {
			needs[j-1], needs[j] = needs[j], needs[j-1]
		}
	}
	return needs
}

func (a *Agenda) cleanup(task Task, fail bool) {
	a.mu.Lock()
	a.working--
	a.inUse[task.Class()]--
	if a.totalQueued() == 0 && a.working == 0 {
		a.cond.Broadcast()
	} else {
		a.cond.Signal()
	}
	a.mu.Unlock()

	a.statsMu.Lock()
	a.numDone++
	if fail {
		a.numFailed++
	}
	a.statsMu.Unlock()
}

// worker is one OS-thread-equivalent goroutine draining the queue,
// grounded on agenda.cpp's task_executor::operator().
func (a *Agenda) worker() {
	for {
		task, segs := a.claimTask()
		if task == nil {
			return
		}

		fail := true
		for attempt := 0; attempt < 10; attempt++ {
			err := task.Run(a, segs)
			if err == nil {
				fail = false
				break
			}

			e, ok := err.(*es3err.Error)
			if !ok {
				logging.Error("%s: %v", task, err)
				break
			}
			switch e.Level {
			case es3err.LevelNone:
				logging.Debug("INFO: %s: %v", task, e)
				time.Sleep(5 * time.Second)
				continue
			case es3err.LevelWarn:
				logging.Warn("WARN: %s: %v", task, e)
				time.Sleep(5 * time.Second)
				continue
			default:
				logging.Error("%s: %v", task, e)
			}
			break
		}

		a.cleanup(task, fail)
	}
}

// Run spawns unbound+cpu+io workers plus, unless quiet, a progress
// thread; joins all of them and returns the count of tasks that
// exhausted retries.
func (a *Agenda) Run() int {
	threadNum := a.limits[Unbound] + a.limits[CPUBound] + a.limits[IOBound]
	if threadNum < 1 {
		threadNum = 1
	}

	var wg sync.WaitGroup
	wg.Add(threadNum)
	for i := 0; i < threadNum; i++ {
		go func() {
			defer wg.Done()
			a.worker()
		}()
	}

	if !a.quiet {
		done := make(chan struct{})
		go func() {
			a.drawProgressLoop(done)
		}()
		wg.Wait()
		close(done)
		a.drawProgressWidget()
		fmt.Fprintln(os.Stderr)
	} else {
		wg.Wait()
	}

	if !a.finalQuiet {
		a.drawStats()
	}

	a.statsMu.Lock()
	failed := int(a.numFailed)
	a.statsMu.Unlock()
	return failed
}

// AddStatCounter accumulates a named byte counter (e.g. "uploaded",
// "downloaded") under the stats lock.
func (a *Agenda) AddStatCounter(name string, val uint64) {
	a.statsMu.Lock()
	a.stats[name] += val
	a.statsMu.Unlock()
}

// TasksCount reports the number of tasks still queued.
func (a *Agenda) TasksCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalQueued()
}

// PrintQueue reports the remaining task descriptions for diagnostics.
func (a *Agenda) PrintQueue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, byClass := range a.tasks {
		for _, bucket := range byClass {
			for _, e := range bucket {
				fmt.Fprintln(os.Stderr, e.task.String())
			}
		}
	}
}
