// Package restart takes fleet instances through a zero-downtime service
// restart: protect, move to standby, restart the workload, verify health,
// move back in service, unprotect. Instances are processed one at a time and
// any desired-capacity adjustment is recorded so the run can put it back.
package restart

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/partouf/infra/capacity"
	"github.com/partouf/infra/cloud"
	"github.com/partouf/infra/health"
	"github.com/partouf/infra/log"
	"github.com/partouf/infra/remote"
)

// Timeouts bounds each wait phase. Zero values fall back to defaults.
type Timeouts struct {
	// Standby bounds the wait for the instance to reach Standby.
	Standby time.Duration
	// Health bounds the wait for the restarted service to answer healthy.
	Health time.Duration
	// InService bounds the wait for the instance to reach InService again.
	InService time.Duration
	// TargetHealth bounds the wait for the load balancer to report the
	// instance healthy.
	TargetHealth time.Duration
}

// DefaultTimeouts returns the stock phase deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Standby:      10 * time.Minute,
		Health:       30 * time.Minute,
		InService:    10 * time.Minute,
		TargetHealth: 15 * time.Minute,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Standby <= 0 {
		t.Standby = def.Standby
	}
	if t.Health <= 0 {
		t.Health = def.Health
	}
	if t.InService <= 0 {
		t.InService = def.InService
	}
	if t.TargetHealth <= 0 {
		t.TargetHealth = def.TargetHealth
	}
	return t
}

// Intervals spaces the polls inside each wait phase.
type Intervals struct {
	// Poll spaces lifecycle and target-health polls.
	Poll time.Duration
	// HealthPoll spaces service health probes.
	HealthPoll time.Duration
}

// DefaultIntervals returns the stock poll spacing.
func DefaultIntervals() Intervals {
	return Intervals{Poll: 5 * time.Second, HealthPoll: 10 * time.Second}
}

func (i Intervals) withDefaults() Intervals {
	def := DefaultIntervals()
	if i.Poll <= 0 {
		i.Poll = def.Poll
	}
	if i.HealthPoll <= 0 {
		i.HealthPoll = def.HealthPoll
	}
	return i
}

// Orchestrator restarts one instance at a time. It is wired once per run and
// shares the run's ledger across instances.
type Orchestrator struct {
	AutoScaling cloud.AutoScaling
	Compute     cloud.Compute
	LB          cloud.LoadBalancer
	Exec        remote.Executor
	Probe       *health.Probe
	Ledger      *capacity.Ledger

	// TargetGroupARN is the pool the instance serves in, polled after
	// standby exit until the load balancer reports the instance healthy.
	TargetGroupARN string
	// RestartCommand is run on the instance once it is in standby.
	RestartCommand []string

	Timeouts  Timeouts
	Intervals Intervals
	Log       zerolog.Logger
}

// RestartOne drives a single instance through the full cycle and returns a
// terminal outcome. Every problem is folded into the outcome; nothing
// propagates as an error, so a bad instance never aborts the run.
func (o *Orchestrator) RestartOne(ctx context.Context, instanceID string) Outcome {
	logg := log.WithInstance(o.Log, instanceID)
	timeouts := o.Timeouts.withDefaults()

	detail, err := o.AutoScaling.InstanceDetail(ctx, instanceID)
	if err != nil {
		if !errors.Is(err, cloud.ErrInstanceNotInGroup) {
			logg.Warn().Err(err).Msg("skipping: autoscaling membership unknown")
		} else {
			logg.Warn().Msg("skipping: not in an autoscaling group")
		}
		return Outcome{InstanceID: instanceID, Status: StatusSkippedNotInGroup, Err: err}
	}
	group := detail.GroupName
	logg = log.WithGroup(logg, group)

	if detail.LifecycleState != cloud.LifecycleInService {
		logg.Warn().Str("lifecycle", detail.LifecycleState).Msg("skipping: not InService")
		return Outcome{InstanceID: instanceID, Status: StatusSkippedNotInService}
	}

	// First mutation. From here on a failure leaves the instance in an
	// intermediate state.
	logg.Info().Msg("enabling scale-in protection")
	if err := o.AutoScaling.SetProtection(ctx, group, []string{instanceID}, true); err != nil {
		return o.failed(logg, instanceID, PhaseProtect, false, err)
	}

	asGroup, err := o.AutoScaling.Group(ctx, group)
	if err != nil {
		return o.failed(logg, instanceID, PhaseEnterStandby, true, err)
	}
	// At minimum capacity the standby move must shrink desired along with
	// it, or the group would immediately launch a replacement. The original
	// value is recorded before the shrinking call goes out.
	adjust := asGroup.Desired == asGroup.Min
	if adjust && o.Ledger.Reserve(group, asGroup.Desired) {
		logg.Info().Int64("desired", asGroup.Desired).Msg("group at minimum capacity, recording desired capacity for restore")
	}

	logg.Info().Bool("decrement", adjust).Msg("moving instance to standby")
	if err := o.AutoScaling.EnterStandby(ctx, group, instanceID, adjust); err != nil {
		return o.failed(logg, instanceID, PhaseEnterStandby, true, err)
	}
	if err := o.waitForLifecycle(ctx, logg, instanceID, cloud.LifecycleStandby, timeouts.Standby); err != nil {
		return o.failed(logg, instanceID, PhaseEnterStandby, true, err)
	}

	logg.Info().Strs("argv", o.RestartCommand).Msg("restarting service")
	output, err := o.Exec.Run(ctx, instanceID, o.RestartCommand)
	if err != nil {
		return o.failed(logg, instanceID, PhaseRestart, true, err)
	}
	if output != "" {
		logg.Warn().Str("output", output).Msg("restart command produced output")
	}

	if err := o.waitForHealthy(ctx, logg, instanceID, timeouts.Health); err != nil {
		return o.failed(logg, instanceID, PhaseHealthCheck, true, err)
	}

	logg.Info().Msg("moving instance back in service")
	if err := o.AutoScaling.ExitStandby(ctx, group, instanceID); err != nil {
		return o.failed(logg, instanceID, PhaseExitStandby, true, err)
	}
	if err := o.waitForLifecycle(ctx, logg, instanceID, cloud.LifecycleInService, timeouts.InService); err != nil {
		return o.failed(logg, instanceID, PhaseExitStandby, true, err)
	}
	if err := o.waitForTargetHealth(ctx, logg, instanceID, timeouts.TargetHealth); err != nil {
		return o.failed(logg, instanceID, PhaseTargetHealth, true, err)
	}

	logg.Info().Msg("disabling scale-in protection")
	if err := o.AutoScaling.SetProtection(ctx, group, []string{instanceID}, false); err != nil {
		return o.failed(logg, instanceID, PhaseUnprotect, true, err)
	}

	logg.Info().Msg("instance restarted")
	return Outcome{InstanceID: instanceID, Status: StatusSuccess}
}

// failed classifies a step error. Deadline exhaustion wins over everything;
// otherwise an instance that was already mutated is partially restarted, one
// that was not is a plain failure.
func (o *Orchestrator) failed(logg zerolog.Logger, instanceID string, phase Phase, mutated bool, err error) Outcome {
	status := StatusFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = StatusTimedOut
	case mutated:
		status = StatusPartiallyRestarted
	}
	logg.Error().Err(err).Str("phase", string(phase)).Str("status", string(status)).Msg("restart failed")
	return Outcome{InstanceID: instanceID, Status: status, Phase: phase, Err: err}
}

// orDeadline returns the wait's own context error, wrapped with the failed
// call's text, when the deadline expired while that call was in flight. SDK
// clients abort such calls with error types that do not unwrap to the
// context error.
func orDeadline(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), err.Error())
	}
	return err
}

// waitForLifecycle polls the autoscaling control plane until the instance
// reports the wanted lifecycle state.
func (o *Orchestrator) waitForLifecycle(ctx context.Context, logg zerolog.Logger, instanceID, want string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	intervals := o.Intervals.withDefaults()

	logg.Info().Str("want", want).Msg("waiting for lifecycle state")
	for {
		detail, err := o.AutoScaling.InstanceDetail(ctx, instanceID)
		if err != nil {
			return orDeadline(ctx, err)
		}
		if detail.LifecycleState == want {
			return nil
		}
		logg.Debug().Str("lifecycle", detail.LifecycleState).Str("want", want).Msg("still waiting")

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "instance:%s never reached lifecycle state %s", instanceID, want)
		case <-time.After(intervals.Poll):
		}
	}
}

// waitForHealthy polls the service health probe until it passes. Each round
// first re-checks that the machine is still running; a stopped or terminated
// machine can never answer, so the wait ends early with ResourceGoneError.
func (o *Orchestrator) waitForHealthy(ctx context.Context, logg zerolog.Logger, instanceID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	intervals := o.Intervals.withDefaults()

	logg.Info().Msg("waiting for the service to report healthy")
	for {
		state, err := o.Compute.State(ctx, instanceID)
		if err != nil {
			return orDeadline(ctx, err)
		}
		if state != cloud.ComputeRunning {
			return &ResourceGoneError{InstanceID: instanceID, State: state}
		}
		if o.Probe.Healthy(ctx, instanceID) {
			logg.Info().Msg("service is healthy")
			return nil
		}
		logg.Debug().Msg("service not healthy yet")

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "instance:%s service never became healthy", instanceID)
		case <-time.After(intervals.HealthPoll):
		}
	}
}

// waitForTargetHealth polls the load balancer until it reports the instance
// healthy, re-checking on each round that the machine is still running.
func (o *Orchestrator) waitForTargetHealth(ctx context.Context, logg zerolog.Logger, instanceID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	intervals := o.Intervals.withDefaults()

	logg.Info().Msg("waiting for the load balancer to report the target healthy")
	for {
		state, err := o.Compute.State(ctx, instanceID)
		if err != nil {
			return orDeadline(ctx, err)
		}
		if state != cloud.ComputeRunning {
			return &ResourceGoneError{InstanceID: instanceID, State: state}
		}
		targets, err := o.LB.TargetHealth(ctx, o.TargetGroupARN)
		if err != nil {
			return orDeadline(ctx, err)
		}
		if targets[instanceID] == cloud.TargetHealthy {
			logg.Info().Msg("target is healthy")
			return nil
		}
		logg.Debug().Str("target", targets[instanceID]).Msg("target not healthy yet")

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "instance:%s never became healthy in the target group", instanceID)
		case <-time.After(intervals.Poll):
		}
	}
}
