// Package topology resolves which instances make up an environment's
// candidate fleet. Legacy environments serve one fixed target group;
// blue/green environments serve one of two color target groups, selected by
// an active-color marker parameter.
package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/partouf/infra/cloud"
	"github.com/partouf/infra/conf"
)

// Color is one side of a blue/green environment.
type Color string

const (
	Blue  Color = "blue"
	Green Color = "green"
)

// ParseColor validates a raw marker value.
func ParseColor(raw string) (Color, error) {
	switch Color(raw) {
	case Blue:
		return Blue, nil
	case Green:
		return Green, nil
	}
	return "", errors.Errorf("active color is %q, expected blue or green", raw)
}

// Other returns the inactive side.
func (c Color) Other() Color {
	if c == Blue {
		return Green
	}
	return Blue
}

// ResolutionError means the candidate fleet for an environment could not be
// determined. Nothing has been mutated when it is returned; the run must not
// start.
type ResolutionError struct {
	Env string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("topology: env:%s cannot resolve candidate fleet: %v", e.Env, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Fleet is the resolved candidate set for one run. Instances are sorted by ID
// so runs walk the fleet in a stable order.
type Fleet struct {
	Environment    string
	Color          Color // empty for legacy environments
	TargetGroupARN string
	Instances      []cloud.Instance
}

// Pool resolves an environment's candidate fleet. Resolution is a pure read.
type Pool interface {
	Resolve(ctx context.Context) (*Fleet, error)
}

// ForEnvironment returns the pool matching the environment's topology.
func ForEnvironment(env conf.Environment, lb cloud.LoadBalancer, markers cloud.Markers) Pool {
	if env.BlueGreen {
		return &blueGreenPool{env: env, lb: lb, markers: markers}
	}
	return &legacyPool{env: env, lb: lb}
}

type legacyPool struct {
	env conf.Environment
	lb  cloud.LoadBalancer
}

func (p *legacyPool) Resolve(ctx context.Context) (*Fleet, error) {
	fleet, err := targetGroupFleet(ctx, p.lb, p.env.TargetGroup)
	if err != nil {
		return nil, &ResolutionError{Env: p.env.Name, Err: err}
	}
	fleet.Environment = p.env.Name
	return fleet, nil
}

type blueGreenPool struct {
	env     conf.Environment
	lb      cloud.LoadBalancer
	markers cloud.Markers
}

// Resolve reads the active-color marker and resolves that color's target
// group. The inactive side is never touched.
func (p *blueGreenPool) Resolve(ctx context.Context) (*Fleet, error) {
	raw, err := p.markers.ActiveColor(ctx, p.env.ActiveColorParameter)
	if err != nil {
		return nil, &ResolutionError{Env: p.env.Name, Err: err}
	}
	color, err := ParseColor(raw)
	if err != nil {
		return nil, &ResolutionError{Env: p.env.Name, Err: err}
	}
	fleet, err := ColorFleet(ctx, p.env, color, p.lb)
	if err != nil {
		return nil, err
	}
	return fleet, nil
}

// ColorFleet resolves one explicit color side of a blue/green environment.
func ColorFleet(ctx context.Context, env conf.Environment, color Color, lb cloud.LoadBalancer) (*Fleet, error) {
	fleet, err := targetGroupFleet(ctx, lb, fmt.Sprintf("%s-%s", env.TargetGroupPrefix, color))
	if err != nil {
		return nil, &ResolutionError{Env: env.Name, Err: err}
	}
	fleet.Environment = env.Name
	fleet.Color = color
	return fleet, nil
}

func targetGroupFleet(ctx context.Context, lb cloud.LoadBalancer, name string) (*Fleet, error) {
	arn, err := lb.TargetGroupARN(ctx, name)
	if err != nil {
		return nil, err
	}
	health, err := lb.TargetHealth(ctx, arn)
	if err != nil {
		return nil, err
	}
	instances := make([]cloud.Instance, 0, len(health))
	for id, state := range health {
		instances = append(instances, cloud.Instance{ID: id, TargetState: state})
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
	return &Fleet{TargetGroupARN: arn, Instances: instances}, nil
}
