package capacity

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScaler struct {
	calls []Entry
	fail  map[string]error
}

func (f *fakeScaler) SetDesiredCapacity(_ context.Context, group string, desired int64) error {
	f.calls = append(f.calls, Entry{Group: group, Desired: desired})
	return f.fail[group]
}

func TestReserveFirstObservationWins(t *testing.T) {
	ledger := NewLedger()

	assert.True(t, ledger.Reserve("asg-1", 2))
	assert.False(t, ledger.Reserve("asg-1", 5))

	desired, ok := ledger.Reserved("asg-1")
	require.True(t, ok)
	assert.Equal(t, int64(2), desired)
	assert.Equal(t, 1, ledger.Len())
}

func TestRestoreAllRestoresInReservationOrder(t *testing.T) {
	ledger := NewLedger()
	ledger.Reserve("asg-2", 4)
	ledger.Reserve("asg-1", 2)

	scaler := &fakeScaler{}
	require.NoError(t, ledger.RestoreAll(context.Background(), scaler))
	assert.Equal(t, []Entry{{Group: "asg-2", Desired: 4}, {Group: "asg-1", Desired: 2}}, scaler.calls)
	assert.Equal(t, 0, ledger.Len())
}

func TestRestoreAllIsIdempotent(t *testing.T) {
	ledger := NewLedger()
	ledger.Reserve("asg-1", 2)
	scaler := &fakeScaler{}

	require.NoError(t, ledger.RestoreAll(context.Background(), scaler))
	require.NoError(t, ledger.RestoreAll(context.Background(), scaler))
	assert.Len(t, scaler.calls, 1)
}

func TestRestoreAllKeepsGoingOnFailure(t *testing.T) {
	ledger := NewLedger()
	ledger.Reserve("asg-1", 2)
	ledger.Reserve("asg-2", 4)

	scaler := &fakeScaler{fail: map[string]error{"asg-1": errors.New("throttled")}}
	err := ledger.RestoreAll(context.Background(), scaler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asg-1")

	assert.Len(t, scaler.calls, 2, "the failed group must not stop the rest")
	assert.Equal(t, 0, ledger.Len())
}

func TestEntriesSnapshot(t *testing.T) {
	ledger := NewLedger()
	ledger.Reserve("asg-1", 3)
	ledger.Reserve("asg-2", 1)

	assert.Equal(t, []Entry{{Group: "asg-1", Desired: 3}, {Group: "asg-2", Desired: 1}}, ledger.Entries())
}
