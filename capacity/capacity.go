// Package capacity tracks desired-capacity adjustments made during a restart
// run so they can be put back at the end, exactly once.
package capacity

import (
	"context"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Scaler is the slice of the autoscaling control plane restoration needs.
type Scaler interface {
	SetDesiredCapacity(ctx context.Context, group string, desired int64) error
}

// Entry is one recorded group capacity.
type Entry struct {
	Group   string
	Desired int64
}

// Ledger records, per autoscaling group, the desired capacity observed before
// the run first adjusted it. A ledger is scoped to a single run and, like the
// run itself, is strictly sequential; it is not safe for concurrent use.
type Ledger struct {
	order   []string
	entries map[string]int64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]int64)}
}

// Reserve records the pre-adjustment desired capacity for a group the first
// time the group is touched. Later calls for the same group are no-ops; the
// first observed value is authoritative. Reports whether this call recorded
// the value.
func (l *Ledger) Reserve(group string, desired int64) bool {
	if _, ok := l.entries[group]; ok {
		return false
	}
	l.entries[group] = desired
	l.order = append(l.order, group)
	return true
}

// Reserved returns the recorded capacity for a group, if any.
func (l *Ledger) Reserved(group string) (int64, bool) {
	desired, ok := l.entries[group]
	return desired, ok
}

// Len reports how many groups are currently recorded.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Entries returns the recorded capacities in reservation order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, group := range l.order {
		out = append(out, Entry{Group: group, Desired: l.entries[group]})
	}
	return out
}

// RestoreAll sets every recorded group's desired capacity back to its
// recorded value, in reservation order, then drains the ledger. A failure for
// one group does not stop the others; failures come back aggregated. Calling
// RestoreAll on an empty ledger is a no-op, so calling it twice is safe.
func (l *Ledger) RestoreAll(ctx context.Context, scaler Scaler) error {
	var err error
	for _, group := range l.order {
		desired := l.entries[group]
		if restoreErr := scaler.SetDesiredCapacity(ctx, group, desired); restoreErr != nil {
			err = multierror.Append(err, errors.Wrapf(restoreErr, "capacity: asg:%s failed to restore desired capacity to %d", group, desired))
		}
	}
	l.order = nil
	l.entries = make(map[string]int64)
	return err
}
