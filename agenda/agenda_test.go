package agenda

import (
	"sync/atomic"
	"testing"

	"es3/internal/es3err"
)

type countingTask struct {
	Base
	class   Class
	need    int
	ordinal int64
	calls   *int32
	failN   int32 // fail this many times before succeeding
	attempt int32
}

func (t *countingTask) Class() Class       { return t.class }
func (t *countingTask) Ordinal() int64     { return t.ordinal }
func (t *countingTask) SegmentNeed() int   { return t.need }
func (t *countingTask) String() string     { return "countingTask" }
func (t *countingTask) Run(ag *Agenda, segs []*Segment) error {
	atomic.AddInt32(t.calls, 1)
	if t.need > 0 && len(segs) != t.need {
		return es3err.Fatalf("expected %d segments, got %d", t.need, len(segs))
	}
	if inFlight := ag.pool.InFlight(); inFlight > ag.pool.maxInFlight {
		return es3err.Fatalf("%d segments in flight, cap is %d", inFlight, ag.pool.maxInFlight)
	}
	for _, s := range segs {
		s.Release()
	}
	n := atomic.AddInt32(&t.attempt, 1)
	if n <= t.failN {
		return es3err.Warnf("synthetic failure %d", n)
	}
	return nil
}

func TestAgendaRunsAllSubmittedTasks(t *testing.T) {
	a := New(Limits{Unbound: 2, CPUBound: 2, IOBound: 2}, 1024, 8, true, true)

	var calls int32
	const n = 50
	for i := 0; i < n; i++ {
		class := Class(i % 3)
		a.Schedule(&countingTask{class: class, need: i % 2, calls: &calls})
	}

	failed := a.Run()
	if failed != 0 {
		t.Fatalf("expected no failures, got %d", failed)
	}
	if int(calls) != n {
		t.Fatalf("expected %d calls, got %d", n, calls)
	}
	if a.pool.InFlight() != 0 {
		t.Fatalf("expected all segments released, got %d in flight", a.pool.InFlight())
	}
}

func TestAgendaRetriesBeforeSucceeding(t *testing.T) {
	a := New(Limits{Unbound: 1, CPUBound: 1, IOBound: 1}, 1024, 4, true, true)

	var calls int32
	a.Schedule(&countingTask{class: IOBound, need: 1, calls: &calls, failN: 2})

	failed := a.Run()
	if failed != 0 {
		t.Fatalf("expected eventual success, got failed=%d", failed)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", calls)
	}
}

func TestAgendaNeverExceedsSegmentsInFlight(t *testing.T) {
	a := New(Limits{Unbound: 8, CPUBound: 0, IOBound: 0}, 1024, 3, true, true)

	var calls int32
	for i := 0; i < 20; i++ {
		a.Schedule(&countingTask{class: Unbound, need: 2, calls: &calls})
	}
	if failed := a.Run(); failed != 0 {
		t.Fatalf("expected segments in flight to stay within the cap, got %d failed tasks", failed)
	}
	if int(calls) != 20 {
		t.Fatalf("expected 20 calls, got %d", calls)
	}
}

type permanentFailTask struct {
	Base
}

func (permanentFailTask) Class() Class     { return CPUBound }
func (permanentFailTask) SegmentNeed() int { return 0 }
func (permanentFailTask) String() string   { return "permanentFailTask" }
func (permanentFailTask) Run(ag *Agenda, segs []*Segment) error {
	return es3err.Fatalf("never succeeds")
}

func TestAgendaFatalFailsImmediately(t *testing.T) {
	a := New(Limits{Unbound: 1, CPUBound: 1, IOBound: 1}, 1024, 4, true, true)
	a.Schedule(&permanentFailTask{})
	failed := a.Run()
	if failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}
}
