// Package quota tracks spending against the YouTube Data API daily unit budget.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Unit costs of the Data API methods used by this module.
const (
	CostList   = 1
	CostSearch = 100
	CostInsert = 50
	CostUpdate = 50
	CostDelete = 50
)

// DefaultDailyLimit is the default project allocation.
const DefaultDailyLimit = 10000

// resetZone is where Google's quota day boundary lives.
var resetZone = mustLoadLocation("America/Los_Angeles")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Without tzdata fall back to PST; off by an hour during DST.
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}

// Day returns the quota day containing t, as YYYY-MM-DD.
func Day(t time.Time) string {
	return t.In(resetZone).Format(time.DateOnly)
}

// NextReset returns the start of the quota day following t.
func NextReset(t time.Time) time.Time {
	local := t.In(resetZone)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, resetZone)
}

// Ledger persists units used per quota day.
type Ledger interface {
	QuotaUsed(ctx context.Context, day string) (int, error)
	SetQuotaUsed(ctx context.Context, day string, used int) error
}

// Tracker counts units spent in the current quota day. It is safe for
// concurrent use.
type Tracker struct {
	mu        sync.Mutex
	limit     int
	reserve   int
	used      int
	exhausted bool
	day       string
	now       func() time.Time
}

// NewTracker returns a tracker with nothing spent. reserve units are never
// made available to CanAfford.
func NewTracker(limit, reserve int) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if reserve < 0 {
		reserve = 0
	}
	t := &Tracker{limit: limit, reserve: reserve, now: time.Now}
	t.day = Day(t.now())
	return t
}

// SetClock overrides the clock used to determine the quota day.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.day = Day(now())
}

// CanAfford reports whether cost more units fit in the budget.
func (t *Tracker) CanAfford(cost int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exhausted {
		return false
	}
	return t.used+cost <= t.limit-t.reserve
}

// Spend records cost units as used.
func (t *Tracker) Spend(cost int) {
	t.mu.Lock()
	t.used += cost
	t.mu.Unlock()
}

// MarkExhausted records that the server refused a call for lack of quota.
// Used keeps counting real spend; Save writes the full limit so later
// processes load the day as exhausted.
func (t *Tracker) MarkExhausted() {
	t.mu.Lock()
	t.exhausted = true
	t.mu.Unlock()
}

// Exhausted reports whether the server has refused a call for lack of quota.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exhausted
}

// Used returns units spent today.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Limit returns the daily allocation.
func (t *Tracker) Limit() int {
	return t.limit
}

// Remaining returns the units still available to CanAfford, never negative.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.limit - t.reserve - t.used
	if r < 0 || t.exhausted {
		return 0
	}
	return r
}

// Day returns the quota day the tracker is counting.
func (t *Tracker) Day() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.day
}

// Load seeds the tracker with units already spent today by earlier runs.
func (t *Tracker) Load(ctx context.Context, l Ledger) error {
	t.mu.Lock()
	day := Day(t.now())
	t.mu.Unlock()

	used, err := l.QuotaUsed(ctx, day)
	if err != nil {
		return fmt.Errorf("load quota usage for %s: %w", day, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.day = day
	t.used = used
	t.exhausted = used >= t.limit
	return nil
}

// Save writes today's usage to the ledger.
func (t *Tracker) Save(ctx context.Context, l Ledger) error {
	t.mu.Lock()
	day, used := t.day, t.used
	if t.exhausted && used < t.limit {
		used = t.limit
	}
	t.mu.Unlock()

	if err := l.SetQuotaUsed(ctx, day, used); err != nil {
		return fmt.Errorf("save quota usage for %s: %w", day, err)
	}
	return nil
}

// InsertsAffordable returns how many playlist inserts fit in what remains.
func (t *Tracker) InsertsAffordable() int {
	return t.Remaining() / CostInsert
}
