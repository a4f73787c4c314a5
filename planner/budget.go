package planner

import (
	"time"

	"github.com/pkg/errors"
)

// ErrBudgetExceeded is the sentinel used in place of exceptions for
// control flow inside the planner: a sub-algorithm (e.g. pattern
// inference) aborts cleanly when its budget runs out and the job
// continues.
var ErrBudgetExceeded = errors.New("planner: step budget exceeded")

// StepBudget bounds a sub-algorithm's iteration count and wall-clock time.
// Checked explicitly at each step; never panics.
type StepBudget struct {
	maxSteps int
	deadline time.Time
	steps    int
}

func NewStepBudget(maxSteps int, timeout time.Duration) *StepBudget {
	return &StepBudget{maxSteps: maxSteps, deadline: time.Now().Add(timeout)}
}

// Consume charges one step against the budget, returning
// ErrBudgetExceeded once either bound is hit.
func (b *StepBudget) Consume() error {
	b.steps++
	if b.steps > b.maxSteps {
		return ErrBudgetExceeded
	}
	if time.Now().After(b.deadline) {
		return ErrBudgetExceeded
	}
	return nil
}
