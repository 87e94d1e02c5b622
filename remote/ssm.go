package remote

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
)

const runShellScriptDocument = "AWS-RunShellScript"

const (
	defaultCommandTimeout = 5 * time.Minute
	defaultPollInterval   = 2 * time.Second
)

// SSMExecutor runs commands through the systems manager agent, so no inbound
// network path to the instance is needed.
type SSMExecutor struct {
	SSM ssmiface.SSMAPI

	// Timeout bounds one command from send to terminal status.
	Timeout time.Duration
	// PollInterval spaces the invocation status polls.
	PollInterval time.Duration
}

// NewSSMExecutor returns an executor with default timing.
func NewSSMExecutor(api ssmiface.SSMAPI) *SSMExecutor {
	return &SSMExecutor{SSM: api}
}

func (e *SSMExecutor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return defaultCommandTimeout
}

func (e *SSMExecutor) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return defaultPollInterval
}

// Run sends argv to the instance as a single shell command and waits for the
// invocation to finish. Stdout comes back trimmed; a non-zero exit or any
// delivery problem comes back as a *TransportError.
func (e *SSMExecutor) Run(ctx context.Context, instanceID string, argv []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	sent, err := e.SSM.SendCommandWithContext(ctx, &ssm.SendCommandInput{
		DocumentName:   aws.String(runShellScriptDocument),
		InstanceIds:    []*string{aws.String(instanceID)},
		Parameters:     map[string][]*string{"commands": {aws.String(shellquote.Join(argv...))}},
		TimeoutSeconds: aws.Int64(int64(e.timeout() / time.Second)),
	})
	if err != nil {
		return "", &TransportError{InstanceID: instanceID, Err: errors.Wrap(err, "failed to send command")}
	}
	commandID := aws.StringValue(sent.Command.CommandId)

	for {
		select {
		case <-ctx.Done():
			return "", &TransportError{InstanceID: instanceID, Err: errors.Wrapf(ctx.Err(), "command %s did not finish", commandID)}
		case <-time.After(e.pollInterval()):
		}

		invocation, err := e.SSM.GetCommandInvocationWithContext(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  aws.String(commandID),
			InstanceId: aws.String(instanceID),
		})
		if err != nil {
			// The invocation is not visible immediately after send.
			var aerr awserr.Error
			if errors.As(err, &aerr) && aerr.Code() == ssm.ErrCodeInvocationDoesNotExist {
				continue
			}
			return "", &TransportError{InstanceID: instanceID, Err: errors.Wrapf(err, "failed to poll command %s", commandID)}
		}

		switch status := aws.StringValue(invocation.Status); status {
		case ssm.CommandInvocationStatusPending,
			ssm.CommandInvocationStatusInProgress,
			ssm.CommandInvocationStatusDelayed:
			continue
		case ssm.CommandInvocationStatusSuccess:
			return strings.TrimSpace(aws.StringValue(invocation.StandardOutputContent)), nil
		default:
			detail := strings.TrimSpace(aws.StringValue(invocation.StandardErrorContent))
			if detail == "" {
				detail = strings.TrimSpace(aws.StringValue(invocation.StatusDetails))
			}
			return "", &TransportError{InstanceID: instanceID, Err: errors.Errorf("command %s ended %s: %s", commandID, status, detail)}
		}
	}
}
