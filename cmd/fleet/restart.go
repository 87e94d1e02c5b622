package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/partouf/infra/log"
	"github.com/partouf/infra/restart"
)

// errRunFailed maps a failed run to exit status 1 without reprinting the
// report.
var errRunFailed = errors.New("run failed")

// tuningFlags are shared by restart and restart-one.
type tuningFlags struct {
	PollInterval        time.Duration `long:"poll-interval" default:"5s" description:"spacing of lifecycle and target-health polls"`
	HealthPollInterval  time.Duration `long:"health-poll-interval" default:"10s" description:"spacing of service health probes"`
	StandbyTimeout      time.Duration `long:"standby-timeout" default:"10m" description:"deadline for the instance to reach Standby"`
	HealthTimeout       time.Duration `long:"health-timeout" default:"30m" description:"deadline for the restarted service to report healthy"`
	InServiceTimeout    time.Duration `long:"inservice-timeout" default:"10m" description:"deadline for the instance to reach InService again"`
	TargetHealthTimeout time.Duration `long:"target-health-timeout" default:"15m" description:"deadline for the load balancer to report the target healthy"`
}

func (t tuningFlags) timeouts() restart.Timeouts {
	return restart.Timeouts{
		Standby:      t.StandbyTimeout,
		Health:       t.HealthTimeout,
		InService:    t.InServiceTimeout,
		TargetHealth: t.TargetHealthTimeout,
	}
}

func (t tuningFlags) intervals() restart.Intervals {
	return restart.Intervals{Poll: t.PollInterval, HealthPoll: t.HealthPollInterval}
}

type restartCmd struct {
	tuningFlags
	MOTD    string        `long:"motd" default:"Site is being updated" description:"update message published while the run is in progress (empty disables)"`
	Yes     bool          `short:"y" long:"yes" description:"answer yes to the confirmation prompt"`
	Timeout time.Duration `long:"run-timeout" default:"3h" description:"overall deadline for the run"`
}

func init() {
	mustAddCommand("restart",
		"Rolling-restart an environment",
		"Restart the service on every instance of the environment's active pool, one instance at a time, without losing serving capacity.",
		&restartCmd{})
}

func (c *restartCmd) Execute([]string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	if !confirm(c.Yes, fmt.Sprintf("restart all instances of %s", app.env.Name)) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	report, err := app.driver(c.timeouts(), c.intervals(), c.MOTD).RestartFleet(ctx)
	return finishRun(report, err)
}

type restartOneCmd struct {
	tuningFlags
	Yes     bool          `short:"y" long:"yes" description:"answer yes to the confirmation prompt"`
	Timeout time.Duration `long:"run-timeout" default:"1h" description:"overall deadline for the run"`
	Args    struct {
		Instance string `positional-arg-name:"INSTANCE" required:"yes" description:"instance ID to restart"`
	} `positional-args:"yes"`
}

func init() {
	mustAddCommand("restart-one",
		"Restart a single instance",
		"Restart the service on one instance of the environment's active pool, with the same protections as a full rolling restart.",
		&restartOneCmd{})
}

func (c *restartOneCmd) Execute([]string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	if !confirm(c.Yes, fmt.Sprintf("restart %s in %s", c.Args.Instance, app.env.Name)) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	report, err := app.driver(c.timeouts(), c.intervals(), "").RestartInstance(ctx, c.Args.Instance)
	return finishRun(report, err)
}

// finishRun prints the report and maps its verdict to the process exit
// status. Runs where cleanup failed count as failed even when every instance
// came through.
func finishRun(report *restart.RunReport, err error) error {
	if report == nil {
		return err
	}
	printReport(report)
	if err != nil {
		log.Logger.Error().Err(err).Msg("run cleanup reported errors")
		return errRunFailed
	}
	if report.Failed {
		return errRunFailed
	}
	return nil
}

func printReport(report *restart.RunReport) {
	fmt.Printf("\nrun %s (%s) finished in %s\n", report.RunID, report.Environment, report.Elapsed.Round(time.Second))
	for _, outcome := range report.Outcomes {
		fmt.Printf("  %s\n", outcome)
	}
	counts := report.Counts()
	ok := counts[restart.StatusSuccess]
	skipped := counts[restart.StatusSkippedNotInGroup] + counts[restart.StatusSkippedNotInService]
	failed := len(report.Outcomes) - ok - skipped
	fmt.Printf("  %d ok, %d skipped, %d failed\n", ok, skipped, failed)
}
