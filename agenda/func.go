package agenda

import "es3/ratelimit"

// FuncTask adapts a closure into a Task with no segment need. It is the
// common shape for a "driver" task: a command schedules one FuncTask
// that itself calls Schedule for further work (uploads, downloads,
// compression blocks) before the agenda's workers pick any of it up —
// the driver task's own "still working" status is what keeps the
// agenda from exiting on an empty queue before the nested work is even
// submitted.
type FuncTask struct {
	Base
	class Class
	fn    func(ag *Agenda) error
	label string
}

// NewFuncTask builds a FuncTask of the given class running fn.
func NewFuncTask(class Class, label string, fn func(ag *Agenda) error) *FuncTask {
	return &FuncTask{class: class, fn: fn, label: label}
}

func (t *FuncTask) Class() Class { return t.class }
func (t *FuncTask) String() string {
	if t.label != "" {
		return t.label
	}
	return "func-task"
}
func (t *FuncTask) Run(ag *Agenda, _ []*Segment) error { return t.fn(ag) }

// RunOne runs a single closure to completion on a fresh, single-use
// Agenda built with limits, blocking until fn and everything it
// schedules has finished. Used by CLI commands that perform one
// transfer outside of any larger sync (cp, touch).
func RunOne(limits Limits, segmentSize, maxSegmentsInFlight int, quiet, finalQuiet bool, bandwidthLimit int64, label string, fn func(ag *Agenda) error) error {
	ag := New(limits, segmentSize, maxSegmentsInFlight, quiet, finalQuiet)
	ag.Limiter = ratelimit.New(bandwidthLimit)
	var err error
	ag.Schedule(NewFuncTask(Unbound, label, func(ag *Agenda) error {
		err = fn(ag)
		return err
	}))
	ag.Run()
	return err
}
