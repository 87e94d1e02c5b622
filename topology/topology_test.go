package topology

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partouf/infra/cloud"
	"github.com/partouf/infra/conf"
)

type fakeLB struct {
	arns      map[string]string
	health    map[string]map[string]string
	healthErr error
	requested []string
}

func (f *fakeLB) TargetGroupARN(_ context.Context, name string) (string, error) {
	f.requested = append(f.requested, name)
	arn, ok := f.arns[name]
	if !ok {
		return "", errors.Errorf("tg:%s target group not found", name)
	}
	return arn, nil
}

func (f *fakeLB) TargetHealth(_ context.Context, arn string) (map[string]string, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return f.health[arn], nil
}

type fakeMarkers struct {
	color string
	err   error
}

func (f *fakeMarkers) ActiveColor(context.Context, string) (string, error) {
	return f.color, f.err
}

func (f *fakeMarkers) SetMessage(context.Context, string, string) error {
	return nil
}

func legacyEnv() conf.Environment {
	return conf.Environment{Name: "staging", TargetGroup: "staging-tg", ServiceUnit: "site.service"}
}

func blueGreenEnv() conf.Environment {
	return conf.Environment{
		Name:                 "prod",
		BlueGreen:            true,
		TargetGroupPrefix:    "prod",
		ActiveColorParameter: "/site/prod/active",
		ServiceUnit:          "site.service",
	}
}

func TestParseColor(t *testing.T) {
	for raw, want := range map[string]Color{"blue": Blue, "green": Green} {
		color, err := ParseColor(raw)
		require.NoError(t, err)
		assert.Equal(t, want, color)
	}

	_, err := ParseColor("purple")
	assert.Error(t, err)
	_, err = ParseColor("")
	assert.Error(t, err)
}

func TestColorOther(t *testing.T) {
	assert.Equal(t, Green, Blue.Other())
	assert.Equal(t, Blue, Green.Other())
}

func TestLegacyResolve(t *testing.T) {
	lb := &fakeLB{
		arns: map[string]string{"staging-tg": "arn:tg/staging"},
		health: map[string]map[string]string{
			"arn:tg/staging": {"i-b": cloud.TargetHealthy, "i-a": cloud.TargetUnhealthy},
		},
	}

	fleet, err := ForEnvironment(legacyEnv(), lb, &fakeMarkers{}).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "staging", fleet.Environment)
	assert.Empty(t, fleet.Color)
	assert.Equal(t, "arn:tg/staging", fleet.TargetGroupARN)
	assert.Equal(t, []cloud.Instance{
		{ID: "i-a", TargetState: cloud.TargetUnhealthy},
		{ID: "i-b", TargetState: cloud.TargetHealthy},
	}, fleet.Instances, "candidates are sorted by instance id")
}

func TestBlueGreenResolveFollowsMarker(t *testing.T) {
	lb := &fakeLB{
		arns: map[string]string{
			"prod-blue":  "arn:tg/blue",
			"prod-green": "arn:tg/green",
		},
		health: map[string]map[string]string{
			"arn:tg/blue": {"i-1": cloud.TargetHealthy},
		},
	}

	fleet, err := ForEnvironment(blueGreenEnv(), lb, &fakeMarkers{color: "blue"}).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Blue, fleet.Color)
	assert.Equal(t, "arn:tg/blue", fleet.TargetGroupARN)
	require.Len(t, fleet.Instances, 1)
	assert.Equal(t, "i-1", fleet.Instances[0].ID)
	assert.Equal(t, []string{"prod-blue"}, lb.requested, "the inactive side must not be touched")
}

func TestBlueGreenResolveRejectsUnknownColor(t *testing.T) {
	pool := ForEnvironment(blueGreenEnv(), &fakeLB{}, &fakeMarkers{color: "purple"})

	_, err := pool.Resolve(context.Background())
	require.Error(t, err)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "prod", resErr.Env)
	assert.Contains(t, err.Error(), "purple")
}

func TestBlueGreenResolveMarkerFailure(t *testing.T) {
	pool := ForEnvironment(blueGreenEnv(), &fakeLB{}, &fakeMarkers{err: errors.New("access denied")})

	_, err := pool.Resolve(context.Background())
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, err.Error(), "access denied")
}

func TestResolveMissingTargetGroup(t *testing.T) {
	pool := ForEnvironment(legacyEnv(), &fakeLB{}, &fakeMarkers{})

	_, err := pool.Resolve(context.Background())
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "staging", resErr.Env)
}

func TestResolveTargetHealthFailure(t *testing.T) {
	lb := &fakeLB{
		arns:      map[string]string{"staging-tg": "arn:tg/staging"},
		healthErr: errors.New("throttled"),
	}

	_, err := ForEnvironment(legacyEnv(), lb, &fakeMarkers{}).Resolve(context.Background())
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestColorFleetExplicitSide(t *testing.T) {
	lb := &fakeLB{
		arns:   map[string]string{"prod-green": "arn:tg/green"},
		health: map[string]map[string]string{"arn:tg/green": {}},
	}

	fleet, err := ColorFleet(context.Background(), blueGreenEnv(), Green, lb)
	require.NoError(t, err)
	assert.Equal(t, Green, fleet.Color)
	assert.Empty(t, fleet.Instances)
}
