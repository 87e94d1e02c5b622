package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"

	"github.com/partouf/infra/cloud"
	"github.com/partouf/infra/topology"
)

type statusCmd struct{}

func init() {
	mustAddCommand("status",
		"Show the environment's fleet",
		"Show the instances serving the environment, with machine state and load balancer health. For blue/green environments both sides are shown along with the active color.",
		&statusCmd{})
}

func (c *statusCmd) Execute([]string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if app.env.BlueGreen {
		return blueGreenStatus(ctx, app)
	}
	return legacyStatus(ctx, app)
}

func legacyStatus(ctx context.Context, app *app) error {
	fleet, err := app.pool().Resolve(ctx)
	if err != nil {
		return err
	}
	return printFleet(ctx, app, fmt.Sprintf("%s: %s", app.env.Name, fleet.TargetGroupARN), fleet)
}

// blueGreenStatus reads the marker, then describes both color pools in
// parallel and prints them active side first.
func blueGreenStatus(ctx context.Context, app *app) error {
	raw, err := app.clients.ActiveColor(ctx, app.env.ActiveColorParameter)
	if err != nil {
		return err
	}
	active, err := topology.ParseColor(raw)
	if err != nil {
		return err
	}

	colors := [2]topology.Color{active, active.Other()}
	var sides [2]*topology.Fleet
	g, gctx := errgroup.WithContext(ctx)
	for i, color := range colors {
		i, color := i, color
		g.Go(func() error {
			fleet, err := topology.ColorFleet(gctx, app.env, color, app.clients)
			if err != nil {
				return err
			}
			sides[i] = fleet
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("%s is serving %s\n", app.env.Name, active)
	for _, fleet := range sides {
		fmt.Println()
		if err := printFleet(ctx, app, sideTitle(fleet, active), fleet); err != nil {
			return err
		}
	}
	return nil
}

func sideTitle(fleet *topology.Fleet, active topology.Color) string {
	if fleet.Color == active {
		return fmt.Sprintf("%s (active): %s", fleet.Color, fleet.TargetGroupARN)
	}
	return fmt.Sprintf("%s: %s", fleet.Color, fleet.TargetGroupARN)
}

func printFleet(ctx context.Context, app *app, title string, fleet *topology.Fleet) error {
	details, err := describeFleet(ctx, app, fleet)
	if err != nil {
		return err
	}
	renderFleet(os.Stdout, title, fleet, details)
	return nil
}

func describeFleet(ctx context.Context, app *app, fleet *topology.Fleet) (map[string]cloud.Instance, error) {
	if len(fleet.Instances) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(fleet.Instances))
	for _, instance := range fleet.Instances {
		ids = append(ids, instance.ID)
	}
	described, err := app.clients.DescribeInstances(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]cloud.Instance, len(described))
	for _, instance := range described {
		byID[instance.ID] = instance
	}
	return byID, nil
}

// renderFleet draws one pool's instance table, EC2 detail merged in.
func renderFleet(out io.Writer, title string, fleet *topology.Fleet, details map[string]cloud.Instance) {
	if len(fleet.Instances) == 0 {
		fmt.Fprintf(out, "%s: no registered instances\n", title)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"ID", "DNS", "State", "Target", "Launched"})
	for _, instance := range fleet.Instances {
		detail := details[instance.ID]
		launched := "-"
		if !detail.LaunchTime.IsZero() {
			launched = detail.LaunchTime.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{instance.ID, detail.PrivateDNS, detail.ComputeState, instance.TargetState, launched})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}
