package main

import (
	"testing"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(&flags.Error{Type: flags.ErrHelp}))
	assert.Equal(t, 2, exitCode(&flags.Error{Type: flags.ErrRequired, Message: "the required flag `-e, --env' was not specified"}))
	assert.Equal(t, 1, exitCode(errRunFailed))
	assert.Equal(t, 1, exitCode(errors.New("no such environment")))
}
