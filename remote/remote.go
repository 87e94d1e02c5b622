// Package remote delivers shell commands to fleet instances.
package remote

import (
	"context"
	"fmt"
)

// Executor runs a command on one instance and returns its stdout.
type Executor interface {
	Run(ctx context.Context, instanceID string, argv []string) (string, error)
}

// TransportError is any failure to deliver a command or collect its result,
// including the command itself exiting non-zero. It is fatal for the instance
// being restarted but never for the run.
type TransportError struct {
	InstanceID string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote: instance:%s %v", e.InstanceID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
