// Package health collects the outcome of boot steps and runtime failures of
// external collaborators without ever aborting the caller.
package health

import (
	"errors"
	"fmt"
	"sync"
)

// Step is the result of one named initialization step.
type Step struct {
	Name     string
	Critical bool
	Err      error
}

func (s Step) OK() bool { return s.Err == nil }

// Tally counts runtime failures for one operation.
type Tally struct {
	Count   uint64
	LastErr error
}

// Report is the boot-health record and runtime error accumulator.
type Report struct {
	mu      sync.Mutex
	steps   []Step
	runtime map[string]*Tally
}

func NewReport() *Report {
	return &Report{runtime: make(map[string]*Tally)}
}

// Record appends a boot step result in call order.
func (r *Report) Record(name string, critical bool, err error) {
	r.mu.Lock()
	r.steps = append(r.steps, Step{Name: name, Critical: critical, Err: err})
	r.mu.Unlock()
}

// Steps returns a copy of the recorded boot steps.
func (r *Report) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// OK reports whether every boot step succeeded.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// Fatal reports whether a critical boot step failed.
func (r *Report) Fatal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.steps {
		if s.Critical && s.Err != nil {
			return true
		}
	}
	return false
}

// Err joins every failed boot step into one error, or nil.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, s := range r.steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Fail tallies a runtime failure of op. A nil err is ignored.
func (r *Report) Fail(op string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	t := r.runtime[op]
	if t == nil {
		t = &Tally{}
		r.runtime[op] = t
	}
	t.Count++
	t.LastErr = err
	r.mu.Unlock()
}

// Failures returns a snapshot of runtime tallies keyed by operation.
func (r *Report) Failures() map[string]Tally {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Tally, len(r.runtime))
	for k, v := range r.runtime {
		out[k] = *v
	}
	return out
}
