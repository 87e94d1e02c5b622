package main

import (
	"context"
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"

	"github.com/partouf/infra/log"
	"github.com/partouf/infra/topology"
)

type execCmd struct {
	Yes  bool `short:"y" long:"yes" description:"answer yes to the confirmation prompt"`
	Args struct {
		Argv []string `positional-arg-name:"CMD" required:"1" description:"command to run"`
	} `positional-args:"yes"`
}

func init() {
	mustAddCommand("exec",
		"Run a command on every instance",
		"Run a shell command on every instance of the environment's active pool, one at a time, and print each instance's output.",
		&execCmd{})
}

func (c *execCmd) Execute([]string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	fleet, err := app.pool().Resolve(ctx)
	if err != nil {
		return err
	}
	if !confirm(c.Yes, fmt.Sprintf("run %q on %d instances of %s",
		shellquote.Join(c.Args.Argv...), len(fleet.Instances), app.env.Name)) {
		return nil
	}
	return runOnFleet(ctx, app, fleet, c.Args.Argv)
}

type startCmd struct {
	Yes bool `short:"y" long:"yes" description:"answer yes to the confirmation prompt"`
}

func init() {
	mustAddCommand("start",
		"Start the service on every instance",
		"Start the environment's service unit on every instance of the active pool.",
		&startCmd{})
}

func (c *startCmd) Execute([]string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	fleet, err := app.pool().Resolve(ctx)
	if err != nil {
		return err
	}
	if !confirm(c.Yes, fmt.Sprintf("start %s on %d instances of %s",
		app.env.ServiceUnit, len(fleet.Instances), app.env.Name)) {
		return nil
	}
	return runOnFleet(ctx, app, fleet, app.env.ServiceCommand("start"))
}

type stopCmd struct {
	Yes   bool `short:"y" long:"yes" description:"answer yes to the confirmation prompt"`
	Force bool `long:"force" description:"stop a protected environment anyway"`
}

func init() {
	mustAddCommand("stop",
		"Stop the service on every instance",
		"Stop the environment's service unit on every instance of the active pool. Protected environments are refused unless forced.",
		&stopCmd{})
}

func (c *stopCmd) Execute([]string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	if app.env.Protected && !c.Force {
		return errors.Errorf("env:%s is protected, stopping it would take the site down (use --force)", app.env.Name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	fleet, err := app.pool().Resolve(ctx)
	if err != nil {
		return err
	}
	if !confirm(c.Yes, fmt.Sprintf("stop %s on %d instances of %s",
		app.env.ServiceUnit, len(fleet.Instances), app.env.Name)) {
		return nil
	}
	return runOnFleet(ctx, app, fleet, app.env.ServiceCommand("stop"))
}

// runOnFleet runs argv on every instance in order. One instance's failure
// does not stop the others; failures come back aggregated.
func runOnFleet(ctx context.Context, app *app, fleet *topology.Fleet, argv []string) error {
	var err error
	for _, instance := range fleet.Instances {
		out, runErr := app.exec.Run(ctx, instance.ID, argv)
		if runErr != nil {
			log.Logger.Error().Err(runErr).Str("instance", instance.ID).Msg("command failed")
			err = multierror.Append(err, runErr)
			continue
		}
		fmt.Printf("%s: %s\n", instance.ID, out)
	}
	return err
}
