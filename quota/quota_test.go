package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	days map[string]int
	err  error
}

func (m *memLedger) QuotaUsed(_ context.Context, day string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.days[day], nil
}

func (m *memLedger) SetQuotaUsed(_ context.Context, day string, used int) error {
	if m.err != nil {
		return m.err
	}
	if m.days == nil {
		m.days = map[string]int{}
	}
	m.days[day] = used
	return nil
}

func TestCanAfford(t *testing.T) {
	tr := NewTracker(100, 0)
	assert.True(t, tr.CanAfford(100))
	assert.False(t, tr.CanAfford(101))

	tr.Spend(50)
	assert.True(t, tr.CanAfford(CostInsert))
	tr.Spend(CostInsert)
	assert.False(t, tr.CanAfford(CostList))
	assert.True(t, tr.CanAfford(0))
	assert.Equal(t, 0, tr.Remaining())
}

func TestReserveIsNeverSpendable(t *testing.T) {
	tr := NewTracker(1000, 900)
	assert.Equal(t, 100, tr.Remaining())
	assert.True(t, tr.CanAfford(CostSearch))
	assert.False(t, tr.CanAfford(CostSearch+1))
	assert.Equal(t, 2, tr.InsertsAffordable())
}

func TestRemainingNeverNegative(t *testing.T) {
	tr := NewTracker(100, 0)
	tr.Spend(250)
	assert.Equal(t, 0, tr.Remaining())
	assert.Equal(t, 250, tr.Used())
}

func TestMarkExhausted(t *testing.T) {
	tr := NewTracker(10000, 0)
	tr.Spend(120)
	tr.MarkExhausted()

	assert.True(t, tr.Exhausted())
	assert.Equal(t, 120, tr.Used(), "exhaustion is not spend")
	assert.Equal(t, 0, tr.Remaining())
	assert.False(t, tr.CanAfford(0))
}

func TestSaveExhaustedDayWritesLimit(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	tr := NewTracker(10000, 0)
	tr.Spend(120)
	tr.MarkExhausted()
	require.NoError(t, tr.Save(ctx, ledger))
	assert.Equal(t, 10000, ledger.days[tr.Day()])

	next := NewTracker(10000, 0)
	require.NoError(t, next.Load(ctx, ledger))
	assert.True(t, next.Exhausted())
}

func TestDayUsesPacificTime(t *testing.T) {
	// 07:30 UTC on Jan 2 is still Jan 1 in Los Angeles.
	ts := time.Date(2024, 1, 2, 7, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01", Day(ts))

	ts = time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-02", Day(ts))
}

func TestNextReset(t *testing.T) {
	ts := time.Date(2024, 1, 2, 7, 30, 0, 0, time.UTC)
	reset := NextReset(ts)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), reset.UTC())
}

func TestLoadSaveAccumulatesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC) }
	ledger := &memLedger{}

	first := NewTracker(10000, 0)
	first.SetClock(clock)
	require.NoError(t, first.Load(ctx, ledger))
	first.Spend(300)
	require.NoError(t, first.Save(ctx, ledger))

	second := NewTracker(10000, 0)
	second.SetClock(clock)
	require.NoError(t, second.Load(ctx, ledger))
	assert.Equal(t, 300, second.Used())
	second.Spend(CostInsert)
	require.NoError(t, second.Save(ctx, ledger))

	assert.Equal(t, 350, ledger.days["2024-03-05"])
}

func TestLoadNewDayStartsFresh(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{days: map[string]int{"2024-03-04": 9000}}

	tr := NewTracker(10000, 0)
	tr.SetClock(func() time.Time { return time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC) })
	require.NoError(t, tr.Load(ctx, ledger))
	assert.Equal(t, 0, tr.Used())
	assert.Equal(t, "2024-03-05", tr.Day())
}

func TestLoadExhaustedDay(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(10000, 0)
	ledger := &memLedger{days: map[string]int{tr.Day(): 10000}}

	require.NoError(t, tr.Load(ctx, ledger))
	assert.True(t, tr.Exhausted())
}

func TestLedgerErrorsAreWrapped(t *testing.T) {
	boom := errors.New("disk full")
	tr := NewTracker(10000, 0)

	err := tr.Load(context.Background(), &memLedger{err: boom})
	assert.ErrorIs(t, err, boom)
	err = tr.Save(context.Background(), &memLedger{err: boom})
	assert.ErrorIs(t, err, boom)
}
