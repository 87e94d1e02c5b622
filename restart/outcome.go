package restart

import (
	"fmt"
	"time"
)

// Status classifies what happened to one instance during a run.
type Status string

const (
	// StatusSuccess means the full cycle completed and the instance is back
	// in service, unprotected.
	StatusSuccess Status = "success"
	// StatusSkippedNotInGroup means the instance is not in an autoscaling
	// group (or its membership could not be read) and was left untouched.
	StatusSkippedNotInGroup Status = "skipped-not-in-group"
	// StatusSkippedNotInService means the instance's lifecycle state was not
	// InService and it was left untouched.
	StatusSkippedNotInService Status = "skipped-not-in-service"
	// StatusFailed means a step failed before anything was mutated.
	StatusFailed Status = "failed"
	// StatusTimedOut means a wait phase exhausted its deadline.
	StatusTimedOut Status = "timed-out"
	// StatusPartiallyRestarted means a step failed after the instance had
	// been mutated; it may be left protected or in standby and needs manual
	// attention.
	StatusPartiallyRestarted Status = "partially-restarted"
)

// Phase names the lifecycle step an outcome stopped at.
type Phase string

const (
	PhaseProtect      Phase = "protect"
	PhaseEnterStandby Phase = "enter-standby"
	PhaseRestart      Phase = "restart-command"
	PhaseHealthCheck  Phase = "health-check"
	PhaseExitStandby  Phase = "exit-standby"
	PhaseTargetHealth Phase = "target-health"
	PhaseUnprotect    Phase = "unprotect"
)

// Outcome is the terminal result for one instance.
type Outcome struct {
	InstanceID string
	Status     Status
	// Phase is the last step attempted. Empty for successes and skips.
	Phase Phase
	Err   error
}

// Failure reports whether this outcome fails the run. Skips do not: an
// instance that was never touched cannot have been broken.
func (o Outcome) Failure() bool {
	switch o.Status {
	case StatusFailed, StatusTimedOut, StatusPartiallyRestarted:
		return true
	}
	return false
}

func (o Outcome) String() string {
	if o.Err == nil {
		return fmt.Sprintf("%s %s", o.InstanceID, o.Status)
	}
	return fmt.Sprintf("%s %s at %s: %v", o.InstanceID, o.Status, o.Phase, o.Err)
}

// ResourceGoneError means the instance's machine left the running state while
// a wait was in progress. No amount of retrying brings it back.
type ResourceGoneError struct {
	InstanceID string
	State      string
}

func (e *ResourceGoneError) Error() string {
	return fmt.Sprintf("instance:%s is no longer running (state %s)", e.InstanceID, e.State)
}

// RunReport summarizes one restart run.
type RunReport struct {
	RunID       string
	Environment string
	Outcomes    []Outcome
	Elapsed     time.Duration
	// Failed is set when at least one outcome is a failure.
	Failed bool
}

// Counts tallies outcomes per status.
func (r *RunReport) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, outcome := range r.Outcomes {
		counts[outcome.Status]++
	}
	return counts
}
