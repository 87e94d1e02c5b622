// Package health probes the service running on a fleet instance.
package health

import (
	"context"
	"strings"

	"github.com/partouf/infra/remote"
)

// Probe fetches the service's health endpoint from the instance itself and
// compares the body against the expected value.
type Probe struct {
	Exec   remote.Executor
	URL    string
	Expect string
}

// New returns a probe for one environment's health endpoint.
func New(exec remote.Executor, url, expect string) *Probe {
	return &Probe{Exec: exec, URL: url, Expect: expect}
}

// Healthy reports whether the service answered with exactly the expected
// body. Transport failures and non-matching bodies both count as unhealthy,
// so callers can keep polling until their deadline.
func (p *Probe) Healthy(ctx context.Context, instanceID string) bool {
	body, err := p.Exec.Run(ctx, instanceID, []string{"curl", "-s", "--max-time", "2", p.URL})
	if err != nil {
		return false
	}
	return strings.TrimSpace(body) == p.Expect
}
