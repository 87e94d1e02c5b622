// Package cloud holds the abstract contracts the restart machinery is built
// against. The only concrete implementation lives in cloud/aws; tests supply
// fakes.
package cloud

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Autoscaling lifecycle states we act on. The control plane reports more
// (Pending, Terminating, EnteringStandby, ...) but the orchestrator only ever
// compares against these.
const (
	LifecycleInService = "InService"
	LifecycleStandby   = "Standby"
)

// Target-group health states as reported by the load balancer.
const (
	TargetHealthy   = "healthy"
	TargetUnhealthy = "unhealthy"
	TargetDraining  = "draining"
)

// ComputeRunning is the compute state an instance must keep for a restart to
// make sense. Anything else mid-restart means the machine is gone.
const ComputeRunning = "running"

// ErrInstanceNotInGroup is returned by AutoScaling.InstanceDetail when the
// instance is not (or no longer) a member of any autoscaling group.
var ErrInstanceNotInGroup = errors.New("cloud: instance is not in an autoscaling group")

// Instance is one fleet member as resolved through a target group.
type Instance struct {
	ID         string
	PrivateDNS string
	// TargetState is the load-balancer health state at resolution time.
	TargetState string
	// ComputeState is the machine state (running, stopped, ...) when known.
	ComputeState string
	LaunchTime   time.Time
}

// Group is an autoscaling group's capacity view.
type Group struct {
	Name    string
	Desired int64
	Min     int64
	Max     int64
}

// InstanceDetail is an instance's membership view as reported by the
// autoscaling control plane.
type InstanceDetail struct {
	InstanceID     string
	GroupName      string
	LifecycleState string
	Protected      bool
}

// AutoScaling is the autoscaling control plane. Calls are expected to be
// idempotent on retry.
type AutoScaling interface {
	// Group describes one autoscaling group's capacity.
	Group(ctx context.Context, name string) (Group, error)
	// InstanceDetail reports an instance's group membership and lifecycle
	// state, or ErrInstanceNotInGroup.
	InstanceDetail(ctx context.Context, instanceID string) (InstanceDetail, error)
	// SetDesiredCapacity sets a group's desired capacity.
	SetDesiredCapacity(ctx context.Context, group string, desired int64) error
	// SetProtection flips scale-in protection for the given instances.
	SetProtection(ctx context.Context, group string, instanceIDs []string, protected bool) error
	// EnterStandby moves an instance to standby, optionally decrementing the
	// group's desired capacity as part of the same request.
	EnterStandby(ctx context.Context, group, instanceID string, decrementDesired bool) error
	// ExitStandby moves a standby instance back toward InService.
	ExitStandby(ctx context.Context, group, instanceID string) error
}

// Compute reads machine state.
type Compute interface {
	// State returns the compute state name for one instance.
	State(ctx context.Context, instanceID string) (string, error)
	// DescribeInstances fills in DNS names, compute state and launch time for
	// the given instance ids.
	DescribeInstances(ctx context.Context, instanceIDs []string) ([]Instance, error)
}

// LoadBalancer reads target-group registration and health.
type LoadBalancer interface {
	// TargetGroupARN resolves a target group by name.
	TargetGroupARN(ctx context.Context, name string) (string, error)
	// TargetHealth returns instance id -> target state for everything
	// currently registered to the target group, in any state.
	TargetHealth(ctx context.Context, targetGroupARN string) (map[string]string, error)
}

// Markers is the small parameter store holding the blue/green active-color
// marker and the operator-visible update message.
type Markers interface {
	// ActiveColor reads the active-color marker parameter.
	ActiveColor(ctx context.Context, parameter string) (string, error)
	// SetMessage writes the update-message parameter. An empty value clears it.
	SetMessage(ctx context.Context, parameter, message string) error
}
