// Package aws implements the cloud contracts against the AWS control plane:
// autoscaling for lifecycle and capacity, EC2 for machine state, ELBv2 for
// target-group health and SSM Parameter Store for the blue/green marker and
// the update message.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/autoscaling/autoscalingiface"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/elbv2"
	"github.com/aws/aws-sdk-go/service/elbv2/elbv2iface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"

	"github.com/partouf/infra/cloud"
)

// Clients bundles the AWS service clients the fleet tooling touches. The
// fields are the generated service interfaces so tests can swap in fakes.
type Clients struct {
	AutoScaling autoscalingiface.AutoScalingAPI
	EC2         ec2iface.EC2API
	ELB         elbv2iface.ELBV2API
	SSM         ssmiface.SSMAPI
}

func New(configProvider client.ConfigProvider) *Clients {
	return &Clients{
		AutoScaling: autoscaling.New(configProvider),
		EC2:         ec2.New(configProvider),
		ELB:         elbv2.New(configProvider),
		SSM:         ssm.New(configProvider),
	}
}

// Group describes one autoscaling group's capacity.
func (c *Clients) Group(ctx context.Context, name string) (cloud.Group, error) {
	output, err := c.AutoScaling.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []*string{aws.String(name)},
	})
	if err != nil {
		return cloud.Group{}, errors.Wrapf(err, "asg:%s failed to describe autoscaling group", name)
	}
	if len(output.AutoScalingGroups) == 0 {
		return cloud.Group{}, errors.Errorf("asg:%s autoscaling group not found", name)
	}

	group := output.AutoScalingGroups[0]
	return cloud.Group{
		Name:    aws.StringValue(group.AutoScalingGroupName),
		Desired: aws.Int64Value(group.DesiredCapacity),
		Min:     aws.Int64Value(group.MinSize),
		Max:     aws.Int64Value(group.MaxSize),
	}, nil
}

// InstanceDetail reports an instance's autoscaling membership, or
// cloud.ErrInstanceNotInGroup if the control plane does not know it.
func (c *Clients) InstanceDetail(ctx context.Context, instanceID string) (cloud.InstanceDetail, error) {
	output, err := c.AutoScaling.DescribeAutoScalingInstancesWithContext(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: []*string{aws.String(instanceID)},
	})
	if err != nil {
		return cloud.InstanceDetail{}, errors.Wrapf(err, "instance:%s failed to describe autoscaling instance", instanceID)
	}
	if len(output.AutoScalingInstances) == 0 {
		return cloud.InstanceDetail{}, cloud.ErrInstanceNotInGroup
	}

	detail := output.AutoScalingInstances[0]
	return cloud.InstanceDetail{
		InstanceID:     aws.StringValue(detail.InstanceId),
		GroupName:      aws.StringValue(detail.AutoScalingGroupName),
		LifecycleState: aws.StringValue(detail.LifecycleState),
		Protected:      aws.BoolValue(detail.ProtectedFromScaleIn),
	}, nil
}

// SetDesiredCapacity sets a group's desired capacity.
func (c *Clients) SetDesiredCapacity(ctx context.Context, group string, desired int64) error {
	_, err := c.AutoScaling.SetDesiredCapacityWithContext(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(group),
		DesiredCapacity:      aws.Int64(desired),
	})
	return errors.Wrapf(err, "asg:%s failed to set desired capacity to %d", group, desired)
}

// SetProtection flips scale-in protection for the given instances.
func (c *Clients) SetProtection(ctx context.Context, group string, instanceIDs []string, protected bool) error {
	_, err := c.AutoScaling.SetInstanceProtectionWithContext(ctx, &autoscaling.SetInstanceProtectionInput{
		AutoScalingGroupName: aws.String(group),
		InstanceIds:          aws.StringSlice(instanceIDs),
		ProtectedFromScaleIn: aws.Bool(protected),
	})
	return errors.Wrapf(err, "asg:%s failed to set scale-in protection to %t", group, protected)
}

// EnterStandby moves an instance to standby, optionally decrementing desired
// capacity as part of the same request.
func (c *Clients) EnterStandby(ctx context.Context, group, instanceID string, decrementDesired bool) error {
	_, err := c.AutoScaling.EnterStandbyWithContext(ctx, &autoscaling.EnterStandbyInput{
		AutoScalingGroupName:           aws.String(group),
		InstanceIds:                    []*string{aws.String(instanceID)},
		ShouldDecrementDesiredCapacity: aws.Bool(decrementDesired),
	})
	return errors.Wrapf(err, "asg:%s instance:%s failed to enter standby", group, instanceID)
}

// ExitStandby moves a standby instance back toward InService.
func (c *Clients) ExitStandby(ctx context.Context, group, instanceID string) error {
	_, err := c.AutoScaling.ExitStandbyWithContext(ctx, &autoscaling.ExitStandbyInput{
		AutoScalingGroupName: aws.String(group),
		InstanceIds:          []*string{aws.String(instanceID)},
	})
	return errors.Wrapf(err, "asg:%s instance:%s failed to exit standby", group, instanceID)
}

// State returns the EC2 state name for one instance.
func (c *Clients) State(ctx context.Context, instanceID string) (string, error) {
	instances, err := c.DescribeInstances(ctx, []string{instanceID})
	if err != nil {
		return "", err
	}
	if len(instances) == 0 {
		return "", errors.Errorf("instance:%s not found", instanceID)
	}
	return instances[0].ComputeState, nil
}

// DescribeInstances fills in DNS names, compute state and launch time for the
// given instance ids. Order follows the EC2 response.
func (c *Clients) DescribeInstances(ctx context.Context, instanceIDs []string) ([]cloud.Instance, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}

	var instances []cloud.Instance
	err := c.EC2.DescribeInstancesPagesWithContext(ctx,
		&ec2.DescribeInstancesInput{InstanceIds: aws.StringSlice(instanceIDs)},
		func(output *ec2.DescribeInstancesOutput, lastPage bool) bool {
			for _, reservation := range output.Reservations {
				for _, instance := range reservation.Instances {
					instances = append(instances, cloud.Instance{
						ID:           aws.StringValue(instance.InstanceId),
						PrivateDNS:   aws.StringValue(instance.PrivateDnsName),
						ComputeState: aws.StringValue(instance.State.Name),
						LaunchTime:   aws.TimeValue(instance.LaunchTime),
					})
				}
			}
			return true
		})
	if err != nil {
		return nil, errors.Wrap(err, "aws: failed to describe ec2 instances")
	}

	return instances, nil
}

// TargetGroupARN resolves a target group by name.
func (c *Clients) TargetGroupARN(ctx context.Context, name string) (string, error) {
	output, err := c.ELB.DescribeTargetGroupsWithContext(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []*string{aws.String(name)},
	})
	if err != nil {
		return "", errors.Wrapf(err, "tg:%s failed to describe target group", name)
	}
	if len(output.TargetGroups) == 0 {
		return "", errors.Errorf("tg:%s target group not found", name)
	}
	return aws.StringValue(output.TargetGroups[0].TargetGroupArn), nil
}

// TargetHealth returns instance id -> target state for everything registered
// to the target group, in any state.
func (c *Clients) TargetHealth(ctx context.Context, targetGroupARN string) (map[string]string, error) {
	output, err := c.ELB.DescribeTargetHealthWithContext(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(targetGroupARN),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "tg:%s failed to describe target health", targetGroupARN)
	}

	health := make(map[string]string, len(output.TargetHealthDescriptions))
	for _, description := range output.TargetHealthDescriptions {
		if description.Target == nil || description.Target.Id == nil {
			continue
		}
		state := ""
		if description.TargetHealth != nil {
			state = aws.StringValue(description.TargetHealth.State)
		}
		health[aws.StringValue(description.Target.Id)] = state
	}
	return health, nil
}

// ActiveColor reads the active-color marker parameter.
func (c *Clients) ActiveColor(ctx context.Context, parameter string) (string, error) {
	output, err := c.SSM.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name: aws.String(parameter),
	})
	if err != nil {
		return "", errors.Wrapf(err, "ssm:%s failed to read parameter", parameter)
	}
	if output.Parameter == nil {
		return "", errors.Errorf("ssm:%s empty parameter response", parameter)
	}
	return aws.StringValue(output.Parameter.Value), nil
}

// SetMessage writes the update-message parameter. SSM rejects empty values, so
// clearing the message deletes the parameter instead.
func (c *Clients) SetMessage(ctx context.Context, parameter, message string) error {
	if message == "" {
		_, err := c.SSM.DeleteParameterWithContext(ctx, &ssm.DeleteParameterInput{
			Name: aws.String(parameter),
		})
		if err != nil {
			var aerr awserr.Error
			if errors.As(err, &aerr) && aerr.Code() == ssm.ErrCodeParameterNotFound {
				return nil
			}
			return errors.Wrapf(err, "ssm:%s failed to clear parameter", parameter)
		}
		return nil
	}

	_, err := c.SSM.PutParameterWithContext(ctx, &ssm.PutParameterInput{
		Name:      aws.String(parameter),
		Value:     aws.String(message),
		Type:      aws.String(ssm.ParameterTypeString),
		Overwrite: aws.Bool(true),
	})
	return errors.Wrapf(err, "ssm:%s failed to write parameter", parameter)
}
