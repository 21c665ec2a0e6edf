package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(clk.Now)), clk
}

func order(id string, st domain.Status, items ...domain.OrderItem) domain.Order {
	if len(items) == 0 {
		items = []domain.OrderItem{{MenuItemID: "ITEM-SAMOSA", Quantity: 1}}
	}
	return domain.Order{ID: id, StudentID: "S-100", Status: st, Items: items}
}

func snapshot(clk *fakeClock, orders ...domain.Order) domain.SnapshotEvent {
	return domain.SnapshotEvent{Orders: orders, StartedAt: clk.Now(), CompletedAt: clk.Now()}
}

func push(id string, st domain.Status) domain.PushEvent {
	return domain.PushEvent{OrderID: id, Status: st}
}

func mustApply(t *testing.T, e *Engine, ev domain.Event) Result {
	t.Helper()
	res, err := e.Apply(ev)
	require.NoError(t, err)
	return res
}

func status(t *testing.T, e *Engine, id string) domain.Status {
	t.Helper()
	st, ok := e.Status(id)
	require.True(t, ok, "order %s unknown", id)
	return st
}

func TestSnapshotCreatesHighlightedRecords(t *testing.T) {
	e, clk := newEngine(t)
	res := mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending), order("O2", domain.StatusInKitchen)))

	assert.Equal(t, []string{"O1", "O2"}, res.New)
	v := e.View()
	require.Len(t, v.Records, 2)
	assert.Equal(t, "O1", v.Records[0].ID)
	assert.Equal(t, domain.ViaPoll, v.Records[0].LastSeenVia)
	assert.Equal(t, uint64(1), v.Records[0].Revision)
	assert.False(t, v.Records[0].Partial)
	assert.True(t, v.IsHighlighted("O1"))
	assert.True(t, v.IsHighlighted("O2"))
	assert.Equal(t, Summary{Active: 2, Total: 2}, v.Summary)
}

func TestHighlightExpiresAfterWindow(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))
	assert.True(t, e.View().IsHighlighted("O1"))

	next, ok := e.NextExpiry()
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(HighlightWindow), next)

	clk.Advance(2 * time.Second)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))
	assert.True(t, e.View().IsHighlighted("O1"), "re-observing must not extend or clear the window")

	clk.Advance(time.Second)
	assert.False(t, e.View().IsHighlighted("O1"))
	assert.True(t, e.Expire())
	_, ok = e.NextExpiry()
	assert.False(t, ok)
}

func TestMonotonicityWithoutManualEvents(t *testing.T) {
	e, clk := newEngine(t)
	inputs := []domain.Event{
		snapshot(clk, order("O1", domain.StatusPending)),
		push("O1", domain.StatusInKitchen),
		push("O1", domain.StatusStockVerified),
		snapshot(clk, order("O1", domain.StatusPending)),
		push("O1", domain.StatusInKitchen),
		snapshot(clk, order("O1", domain.StatusStockVerified)),
		push("O1", domain.StatusReady),
		push("O1", domain.StatusFailed),
		snapshot(clk, order("O1", domain.StatusInKitchen)),
	}
	last := -1
	for _, ev := range inputs {
		mustApply(t, e, ev)
		cur := status(t, e, "O1").Ordinal()
		assert.GreaterOrEqual(t, cur, last, "after %s event", ev.Kind())
		last = cur
	}
	assert.Equal(t, domain.StatusReady, status(t, e, "O1"))
}

func TestDuplicatePushAppliesOnce(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))

	first := mustApply(t, e, push("O1", domain.StatusStockVerified))
	second := mustApply(t, e, push("O1", domain.StatusStockVerified))

	assert.Equal(t, []string{"O1"}, first.Changed)
	assert.Empty(t, second.Changed)
	assert.Equal(t, []string{"O1"}, second.Discarded)
	rec, _ := e.View().Record("O1")
	assert.Equal(t, uint64(2), rec.Revision)
	assert.Equal(t, domain.ViaPush, rec.LastSeenVia)
}

func TestOutOfOrderPushIsDiscarded(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusStockVerified)))

	mustApply(t, e, push("O1", domain.StatusInKitchen))
	res := mustApply(t, e, push("O1", domain.StatusStockVerified))

	assert.Equal(t, []string{"O1"}, res.Discarded)
	assert.Equal(t, domain.StatusInKitchen, status(t, e, "O1"))
}

func TestPushSkippingAStepIsDiscardedButSnapshotCatchesUp(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))

	res := mustApply(t, e, push("O1", domain.StatusInKitchen))
	assert.Equal(t, []string{"O1"}, res.Discarded)
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))

	mustApply(t, e, snapshot(clk, order("O1", domain.StatusInKitchen)))
	assert.Equal(t, domain.StatusInKitchen, status(t, e, "O1"))
}

func TestSnapshotNeverRegressesPushAdvancedState(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusStockVerified)))
	mustApply(t, e, push("O1", domain.StatusInKitchen))

	updated := []domain.OrderItem{{MenuItemID: "ITEM-KEBAB", Quantity: 2}, {MenuItemID: "ITEM-JUICE", Quantity: 1}}
	res := mustApply(t, e, snapshot(clk, order("O1", domain.StatusStockVerified, updated...)))

	rec, ok := e.View().Record("O1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusInKitchen, rec.Status)
	assert.Equal(t, updated, rec.Items)
	assert.Equal(t, domain.ViaPoll, rec.LastSeenVia)
	assert.Equal(t, []string{"O1"}, res.Changed)
	assert.Equal(t, []string{"O1"}, res.Discarded)
}

func TestSnapshotAbsenceIsNotDeletion(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending), order("O2", domain.StatusPending)))
	mustApply(t, e, snapshot(clk, order("O2", domain.StatusStockVerified)))

	v := e.View()
	require.Len(t, v.Records, 2)
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))
}

func TestPushCreatesPartialRecordFilledBySnapshot(t *testing.T) {
	e, clk := newEngine(t)
	res := mustApply(t, e, push("O9", domain.StatusStockVerified))
	assert.Equal(t, []string{"O9"}, res.New)

	rec, _ := e.View().Record("O9")
	assert.True(t, rec.Partial)
	assert.Empty(t, rec.Items)
	assert.False(t, e.View().IsHighlighted("O9"))

	mustApply(t, e, snapshot(clk, order("O9", domain.StatusStockVerified)))
	rec, _ = e.View().Record("O9")
	assert.False(t, rec.Partial)
	assert.Equal(t, "S-100", rec.StudentID)
	assert.Len(t, rec.Items, 1)
}

func TestManualRevertOverridesGuard(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusInKitchen)))
	mustApply(t, e, push("O1", domain.StatusReady))

	res := mustApply(t, e, domain.ManualEvent{Order: domain.Order{ID: "O1", Status: domain.StatusInKitchen}, Direction: domain.Revert})

	assert.True(t, res.Refresh)
	rec, _ := e.View().Record("O1")
	assert.Equal(t, domain.StatusInKitchen, rec.Status)
	assert.Equal(t, domain.ViaManual, rec.LastSeenVia)
	assert.Equal(t, uint64(3), rec.Revision)
}

func TestSnapshotAfterManualEventWins(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusInKitchen)))

	clk.Advance(time.Second)
	mustApply(t, e, domain.ManualEvent{Order: domain.Order{ID: "O1", Status: domain.StatusReady}, Direction: domain.Advance, AppliedAt: clk.Now()})

	// A fetch that started before the manual event is older and must not regress.
	stale := domain.SnapshotEvent{Orders: []domain.Order{order("O1", domain.StatusInKitchen)}, StartedAt: clk.Now().Add(-500 * time.Millisecond), CompletedAt: clk.Now()}
	mustApply(t, e, stale)
	assert.Equal(t, domain.StatusReady, status(t, e, "O1"))

	// The follow-up snapshot disagrees: the backend rejected the command.
	clk.Advance(100 * time.Millisecond)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusInKitchen)))
	assert.Equal(t, domain.StatusInKitchen, status(t, e, "O1"))

	// Authority is spent; the forward-only guard is back.
	mustApply(t, e, push("O1", domain.StatusReady))
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusInKitchen)))
	assert.Equal(t, domain.StatusReady, status(t, e, "O1"))
}

func TestSnapshotStartedBeforeRevertKeepsManualStatus(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusReady)))

	clk.Advance(time.Second)
	manualAt := clk.Now()
	mustApply(t, e, domain.ManualEvent{Order: domain.Order{ID: "O1", Status: domain.StatusInKitchen}, Direction: domain.Revert, AppliedAt: manualAt})

	note := "extra napkins"
	inFlight := order("O1", domain.StatusReady, domain.OrderItem{MenuItemID: "ITEM-DOSA", Quantity: 2})
	inFlight.Note = &note
	res := mustApply(t, e, domain.SnapshotEvent{
		Orders:      []domain.Order{inFlight},
		StartedAt:   manualAt.Add(-200 * time.Millisecond),
		CompletedAt: manualAt.Add(100 * time.Millisecond),
	})
	assert.Equal(t, []string{"O1"}, res.Discarded)
	rec, ok := e.View().Record("O1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusInKitchen, rec.Status)
	assert.Equal(t, []domain.OrderItem{{MenuItemID: "ITEM-DOSA", Quantity: 2}}, rec.Items, "fields still merge")
	require.NotNil(t, rec.Note)
	assert.Equal(t, note, *rec.Note)

	// the follow-up fetch started after the revert settles it
	clk.Advance(time.Second)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusInKitchen)))
	assert.Equal(t, domain.StatusInKitchen, status(t, e, "O1"))
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusReady)))
	assert.Equal(t, domain.StatusReady, status(t, e, "O1"))
}

func TestRevertScenarioIgnoresOlderPoll(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))
	mustApply(t, e, push("O1", domain.StatusStockVerified))

	clk.Advance(time.Second)
	manualAt := clk.Now()
	mustApply(t, e, domain.ManualEvent{Order: domain.Order{ID: "O1", Status: domain.StatusPending}, Direction: domain.Revert, AppliedAt: manualAt})

	mustApply(t, e, domain.SnapshotEvent{
		Orders:      []domain.Order{order("O1", domain.StatusStockVerified)},
		StartedAt:   manualAt.Add(-time.Second),
		CompletedAt: manualAt.Add(50 * time.Millisecond),
	})
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))

	clk.Advance(time.Second)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))
}

func TestInvalidSnapshotRowsAreSkipped(t *testing.T) {
	e, clk := newEngine(t)
	bad := order("O2", domain.StatusPending, domain.OrderItem{MenuItemID: "ITEM-DATE", Quantity: 0})
	res := mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending), bad, domain.Order{ID: "O3", Status: "cooking"}))

	assert.Equal(t, []string{"O1"}, res.New)
	_, ok := e.Status("O2")
	assert.False(t, ok)
}

func TestFetchFailureMarksViewStale(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))

	e.NoteFetchFailure(&domain.TransientFetchError{Op: "GET /kitchen/all-orders", Status: 502}, clk.Now())
	v := e.View()
	assert.True(t, v.Stale)
	assert.Contains(t, v.LastFetchError, "502")
	require.Len(t, v.Records, 1)

	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))
	assert.False(t, e.View().Stale)
}

func TestScenarioPollPushStalePollRevert(t *testing.T) {
	e, clk := newEngine(t)

	mustApply(t, e, snapshot(clk, domain.Order{ID: "O1", Status: domain.StatusPending}))
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))
	assert.True(t, e.View().IsHighlighted("O1"))

	mustApply(t, e, push("O1", domain.StatusStockVerified))
	assert.Equal(t, domain.StatusStockVerified, status(t, e, "O1"))
	assert.True(t, e.View().IsHighlighted("O1"))

	clk.Advance(time.Second)
	mustApply(t, e, snapshot(clk, domain.Order{ID: "O1", Status: domain.StatusPending}))
	assert.Equal(t, domain.StatusStockVerified, status(t, e, "O1"))

	clk.Advance(time.Second)
	res := mustApply(t, e, domain.ManualEvent{Order: domain.Order{ID: "O1", Status: domain.StatusPending}, Direction: domain.Revert, AppliedAt: clk.Now()})
	assert.True(t, res.Refresh)
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))

	mustApply(t, e, snapshot(clk, domain.Order{ID: "O1", Status: domain.StatusPending}))
	assert.Equal(t, domain.StatusPending, status(t, e, "O1"))
}

func TestClosedEngineRefusesEvents(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk, order("O1", domain.StatusPending)))
	e.Close()

	_, err := e.Apply(push("O1", domain.StatusStockVerified))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.Empty(t, e.View().Records)
}

func TestByStatusGroupsColumns(t *testing.T) {
	e, clk := newEngine(t)
	mustApply(t, e, snapshot(clk,
		order("O1", domain.StatusPending),
		order("O2", domain.StatusReady),
		order("O3", domain.StatusPending),
		order("O4", domain.StatusFailed),
	))
	v := e.View()
	cols := v.ByStatus()
	require.Len(t, cols[domain.StatusPending], 2)
	assert.Equal(t, "O3", cols[domain.StatusPending][1].ID)
	assert.Equal(t, Summary{Active: 2, Ready: 1, Failed: 1, Total: 4}, v.Summary)
}
