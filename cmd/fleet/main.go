// fleet operates the instance fleets behind the site: rolling restarts,
// status, and bulk service control, per environment.
package main

import (
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	awscloud "github.com/partouf/infra/cloud/aws"
	"github.com/partouf/infra/conf"
	"github.com/partouf/infra/log"
	"github.com/partouf/infra/remote"
	"github.com/partouf/infra/restart"
	"github.com/partouf/infra/topology"
)

var opts struct {
	Config  string `short:"c" long:"config" default:"fleet.yaml" description:"path to the fleet configuration file"`
	Env     string `short:"e" long:"env" required:"true" description:"environment to operate on"`
	Region  string `long:"region" description:"override the configured region"`
	JSON    bool   `long:"json" description:"write logs as JSON instead of console lines"`
	Verbose bool   `short:"v" long:"verbose" description:"enable debug logging"`
}

var parser = flags.NewParser(&opts, flags.Default)

func mustAddCommand(name, short, long string, cmd interface{}) {
	if _, err := parser.AddCommand(name, short, long, cmd); err != nil {
		panic(err)
	}
}

func main() {
	if _, err := parser.Parse(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a parse or command failure to the process exit status: 0
// when help was requested, 2 for usage errors, 1 for everything else.
// go-flags has already printed the error itself.
func exitCode(err error) int {
	if flags.WroteHelp(err) {
		return 0
	}
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		return 2
	}
	return 1
}

// app holds the wiring every subcommand needs.
type app struct {
	cfg     *conf.Config
	env     conf.Environment
	clients *awscloud.Clients
	exec    *remote.SSMExecutor
}

func newApp() (*app, error) {
	log.Init(log.Config{Verbose: opts.Verbose, JSON: opts.JSON})

	cfg, err := conf.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	env, err := cfg.Environment(opts.Env)
	if err != nil {
		return nil, err
	}
	region := cfg.Region
	if opts.Region != "" {
		region = opts.Region
	}
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create aws session")
	}
	clients := awscloud.New(sess)
	return &app{cfg: cfg, env: env, clients: clients, exec: remote.NewSSMExecutor(clients.SSM)}, nil
}

func (a *app) pool() topology.Pool {
	return topology.ForEnvironment(a.env, a.clients, a.clients)
}

func (a *app) driver(timeouts restart.Timeouts, intervals restart.Intervals, message string) *restart.Driver {
	return &restart.Driver{
		Pool:        a.pool(),
		AutoScaling: a.clients,
		Compute:     a.clients,
		LB:          a.clients,
		Exec:        a.exec,
		Markers:     a.clients,
		Env:         a.env,
		Timeouts:    timeouts,
		Intervals:   intervals,
		Message:     message,
		Log:         log.WithComponent("restart"),
	}
}
