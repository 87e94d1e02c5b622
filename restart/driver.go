package restart

import (
	"context"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/partouf/infra/capacity"
	"github.com/partouf/infra/cloud"
	"github.com/partouf/infra/conf"
	"github.com/partouf/infra/health"
	"github.com/partouf/infra/log"
	"github.com/partouf/infra/remote"
	"github.com/partouf/infra/topology"
)

// restoreGrace bounds the epilogue when the run context is already dead, so
// capacity restoration still gets a chance to go out.
const restoreGrace = 2 * time.Minute

// Driver runs a whole-fleet restart: resolve the candidates once, walk them
// one at a time, then put desired capacity back no matter what happened.
type Driver struct {
	Pool        topology.Pool
	AutoScaling cloud.AutoScaling
	Compute     cloud.Compute
	LB          cloud.LoadBalancer
	Exec        remote.Executor
	Markers     cloud.Markers

	Env       conf.Environment
	Timeouts  Timeouts
	Intervals Intervals

	// Message, when non-empty, is published to the environment's update
	// message parameter for the duration of the run.
	Message string

	Log zerolog.Logger
}

// RestartFleet restarts every instance of the environment's active pool.
func (d *Driver) RestartFleet(ctx context.Context) (*RunReport, error) {
	fleet, err := d.Pool.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, fleet, fleet.Instances)
}

// RestartInstance restarts a single member of the environment's active pool.
// The instance must be part of the resolved candidate fleet; anything else is
// refused before any mutation.
func (d *Driver) RestartInstance(ctx context.Context, instanceID string) (*RunReport, error) {
	fleet, err := d.Pool.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	for _, instance := range fleet.Instances {
		if instance.ID == instanceID {
			return d.run(ctx, fleet, []cloud.Instance{instance})
		}
	}
	return nil, errors.Errorf("restart: instance:%s is not in env:%s's candidate fleet", instanceID, d.Env.Name)
}

func (d *Driver) run(ctx context.Context, fleet *topology.Fleet, instances []cloud.Instance) (*RunReport, error) {
	runID := uuid.NewString()
	logg := log.WithRun(d.Log, runID, d.Env.Name)
	start := time.Now()

	event := logg.Info().Int("instances", len(instances)).Str("target_group", fleet.TargetGroupARN)
	if fleet.Color != "" {
		event = event.Str("color", string(fleet.Color))
	}
	event.Msg("starting restart run")

	motdSet := false
	if d.Message != "" && d.Env.MOTDParameter != "" {
		if err := d.Markers.SetMessage(ctx, d.Env.MOTDParameter, d.Message); err != nil {
			return nil, err
		}
		motdSet = true
	}

	ledger := capacity.NewLedger()
	orch := &Orchestrator{
		AutoScaling:    d.AutoScaling,
		Compute:        d.Compute,
		LB:             d.LB,
		Exec:           d.Exec,
		Probe:          health.New(d.Exec, d.Env.Health.URL, d.Env.Health.Expect),
		Ledger:         ledger,
		TargetGroupARN: fleet.TargetGroupARN,
		RestartCommand: d.Env.ServiceCommand("restart"),
		Timeouts:       d.Timeouts,
		Intervals:      d.Intervals,
		Log:            logg,
	}

	report := &RunReport{RunID: runID, Environment: d.Env.Name}
	for i, instance := range instances {
		logg.Info().Str("instance", instance.ID).Msgf("restarting instance %d of %d", i+1, len(instances))
		outcome := orch.RestartOne(ctx, instance.ID)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Failure() {
			report.Failed = true
			logg.Warn().Str("instance", instance.ID).Msg("continuing with the remaining instances")
		}
	}

	err := d.epilogue(ctx, logg, ledger, motdSet)
	report.Elapsed = time.Since(start)
	logg.Info().Dur("elapsed", report.Elapsed).Bool("failed", report.Failed).Msg("run finished")
	return report, err
}

// epilogue restores recorded capacities and clears the update message. It
// runs unconditionally, on a fresh deadline if the run context is already
// dead. Restoration failures do not stop the message cleanup.
func (d *Driver) epilogue(ctx context.Context, logg zerolog.Logger, ledger *capacity.Ledger, motdSet bool) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), restoreGrace)
		defer cancel()
	}

	var err error
	for _, entry := range ledger.Entries() {
		logg.Info().Str("asg", entry.Group).Int64("desired", entry.Desired).Msg("restoring desired capacity")
	}
	if restoreErr := ledger.RestoreAll(ctx, d.AutoScaling); restoreErr != nil {
		err = multierror.Append(err, restoreErr)
	}

	if motdSet {
		logg.Info().Msg("clearing update message")
		if clearErr := d.Markers.SetMessage(ctx, d.Env.MOTDParameter, ""); clearErr != nil {
			err = multierror.Append(err, clearErr)
		}
	}
	return err
}
