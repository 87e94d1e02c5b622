package health

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type scriptedExec struct {
	out  string
	err  error
	argv []string
}

func (s *scriptedExec) Run(_ context.Context, _ string, argv []string) (string, error) {
	s.argv = argv
	return s.out, s.err
}

func TestHealthy(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		want bool
	}{
		{name: "exact match", out: "Everything is awesome", want: true},
		{name: "trailing newline", out: "Everything is awesome\n", want: true},
		{name: "wrong body", out: "starting up", want: false},
		{name: "empty body", out: "", want: false},
		{name: "transport failure", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExec{out: tt.out, err: tt.err}
			probe := New(exec, "http://127.0.0.1/healthcheck", "Everything is awesome")
			assert.Equal(t, tt.want, probe.Healthy(context.Background(), "i-1"))
		})
	}
}

func TestHealthyProbesTheConfiguredURL(t *testing.T) {
	exec := &scriptedExec{out: "ok"}
	probe := New(exec, "http://127.0.0.1:8080/ping", "ok")

	assert.True(t, probe.Healthy(context.Background(), "i-1"))
	assert.Equal(t, []string{"curl", "-s", "--max-time", "2", "http://127.0.0.1:8080/ping"}, exec.argv)
}
