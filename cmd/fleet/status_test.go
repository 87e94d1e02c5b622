package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/partouf/infra/cloud"
	"github.com/partouf/infra/topology"
)

func TestRenderFleet(t *testing.T) {
	launched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fleet := &topology.Fleet{
		Environment:    "prod",
		Color:          topology.Blue,
		TargetGroupARN: "arn:tg/blue",
		Instances: []cloud.Instance{
			{ID: "i-1", TargetState: cloud.TargetHealthy},
			{ID: "i-2", TargetState: cloud.TargetDraining},
		},
	}
	details := map[string]cloud.Instance{
		"i-1": {
			ID:           "i-1",
			PrivateDNS:   "ip-10-0-0-1.ec2.internal",
			ComputeState: cloud.ComputeRunning,
			LaunchTime:   launched,
		},
	}

	var out bytes.Buffer
	renderFleet(&out, "blue (active): arn:tg/blue", fleet, details)

	rendered := out.String()
	assert.Contains(t, rendered, "blue (active): arn:tg/blue")
	assert.Contains(t, rendered, "i-1")
	assert.Contains(t, rendered, "ip-10-0-0-1.ec2.internal")
	assert.Contains(t, rendered, "running")
	assert.Contains(t, rendered, "healthy")
	assert.Contains(t, rendered, "2024-05-01T12:00:00Z")
	// i-2 was never described, so it keeps blank detail and a "-" launch time
	assert.Contains(t, rendered, "i-2")
	assert.Contains(t, rendered, "draining")
}

func TestRenderFleetEmpty(t *testing.T) {
	fleet := &topology.Fleet{Environment: "staging", TargetGroupARN: "arn:tg/staging"}

	var out bytes.Buffer
	renderFleet(&out, "staging: arn:tg/staging", fleet, nil)

	assert.Equal(t, "staging: arn:tg/staging: no registered instances\n", out.String())
}

func TestSideTitle(t *testing.T) {
	blue := &topology.Fleet{Color: topology.Blue, TargetGroupARN: "arn:tg/blue"}
	green := &topology.Fleet{Color: topology.Green, TargetGroupARN: "arn:tg/green"}

	assert.Equal(t, "blue (active): arn:tg/blue", sideTitle(blue, topology.Blue))
	assert.Equal(t, "green: arn:tg/green", sideTitle(green, topology.Blue))
	assert.Equal(t, "green (active): arn:tg/green", sideTitle(green, topology.Green))
}
