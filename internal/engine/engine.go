// Package engine merges snapshot, push and manual events into one view of order state.
//
// The engine is not safe for concurrent use. It is owned by a single session loop;
// everything else reads the immutable View it produces.
package engine

import (
	"errors"
	"slices"
	"time"

	"order-sync/internal/common/logger"
	"order-sync/internal/domain"
	"order-sync/internal/metrics"
)

// HighlightWindow is how long a newly observed order stays highlighted.
const HighlightWindow = 3 * time.Second

type Option func(*Engine)

// WithClock replaces time.Now; tests drive highlight expiry with it.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(lg *logger.Logger) Option { return func(e *Engine) { e.lg = lg } }

type entry struct {
	rec domain.ViewRecord
	// manualAt is set by a manual event and cleared by the first snapshot fetched after it.
	manualAt time.Time
}

type Engine struct {
	lg  *logger.Logger
	now func() time.Time

	records   map[string]*entry
	arrival   []string
	highlight map[string]time.Time

	lastSnapshotAt time.Time
	lastFetchErr   string
	lastFetchErrAt time.Time
	closed         bool
}

// Result describes what one Apply call changed.
type Result struct {
	New       []string
	Changed   []string
	Discarded []string
	// Refresh asks the caller to fetch a snapshot immediately.
	Refresh bool
}

func (r Result) Empty() bool { return len(r.New) == 0 && len(r.Changed) == 0 }

func New(opts ...Option) *Engine {
	e := &Engine{
		lg:        logger.Nop(),
		now:       time.Now,
		records:   make(map[string]*entry),
		highlight: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Apply reconciles one event. Events must be passed in arrival order.
func (e *Engine) Apply(ev domain.Event) (Result, error) {
	if e.closed {
		return Result{}, domain.ErrSessionClosed
	}
	var res Result
	switch ev := ev.(type) {
	case domain.SnapshotEvent:
		res = e.applySnapshot(ev)
	case domain.PushEvent:
		res = e.applyPush(ev)
	case domain.ManualEvent:
		res = e.applyManual(ev)
	default:
		return Result{}, errors.New("engine: unsupported event")
	}
	metrics.RecordsKnown.Set(float64(len(e.records)))
	return res, nil
}

func (e *Engine) applySnapshot(ev domain.SnapshotEvent) Result {
	var res Result
	now := e.now()
	for _, o := range ev.Orders {
		if err := o.Validate(); err != nil {
			e.lg.Warn("snapshot_row_skipped", map[string]any{"order_id": o.ID, "reason": err.Error()})
			metrics.EventsTotal.WithLabelValues("snapshot", "invalid_row").Inc()
			continue
		}
		ent, ok := e.records[o.ID]
		if !ok {
			e.insert(o, domain.ViaPoll)
			e.highlight[o.ID] = now.Add(HighlightWindow)
			res.New = append(res.New, o.ID)
			metrics.EventsTotal.WithLabelValues("snapshot", "created").Inc()
			continue
		}

		fieldsChanged := mergeFields(&ent.rec, o)
		statusChanged := false
		// a fetch that started before the manual event cannot speak to its status
		preManual := !ent.manualAt.IsZero() && ev.StartedAt.Before(ent.manualAt)
		authoritative := !ent.manualAt.IsZero() && !preManual
		switch {
		case o.Status == ent.rec.Status:
		case !preManual && (authoritative || domain.IsReachable(ent.rec.Status, o.Status)):
			ent.rec.Status = o.Status
			statusChanged = true
		default:
			res.Discarded = append(res.Discarded, o.ID)
			metrics.EventsTotal.WithLabelValues("snapshot", "stale_status").Inc()
			e.lg.Debug("snapshot_status_discarded", map[string]any{
				"order_id": o.ID, "current": ent.rec.Status, "snapshot": o.Status,
			})
		}
		if authoritative {
			ent.manualAt = time.Time{}
		}
		if fieldsChanged || statusChanged {
			ent.rec.Revision++
			ent.rec.LastSeenVia = domain.ViaPoll
			res.Changed = append(res.Changed, o.ID)
			metrics.EventsTotal.WithLabelValues("snapshot", "applied").Inc()
		}
	}
	e.lastSnapshotAt = ev.CompletedAt
	e.lastFetchErr = ""
	e.lastFetchErrAt = time.Time{}
	return res
}

func (e *Engine) applyPush(ev domain.PushEvent) Result {
	var res Result
	if ev.OrderID == "" || !ev.Status.Valid() {
		metrics.EventsTotal.WithLabelValues("push", "invalid").Inc()
		return res
	}
	ent, ok := e.records[ev.OrderID]
	if !ok {
		e.insert(domain.Order{ID: ev.OrderID, Status: ev.Status}, domain.ViaPush)
		res.New = append(res.New, ev.OrderID)
		metrics.EventsTotal.WithLabelValues("push", "created").Inc()
		return res
	}
	if !domain.IsLegalAutomaticTransition(ent.rec.Status, ev.Status) {
		res.Discarded = append(res.Discarded, ev.OrderID)
		metrics.EventsTotal.WithLabelValues("push", "discarded").Inc()
		e.lg.Debug("push_discarded", map[string]any{
			"order_id": ev.OrderID, "current": ent.rec.Status, "pushed": ev.Status,
		})
		return res
	}
	ent.rec.Status = ev.Status
	ent.rec.Revision++
	ent.rec.LastSeenVia = domain.ViaPush
	res.Changed = append(res.Changed, ev.OrderID)
	metrics.EventsTotal.WithLabelValues("push", "applied").Inc()
	return res
}

func (e *Engine) applyManual(ev domain.ManualEvent) Result {
	res := Result{Refresh: true}
	o := ev.Order
	if o.ID == "" || !o.Status.Valid() {
		metrics.EventsTotal.WithLabelValues("manual", "invalid").Inc()
		return res
	}
	at := ev.AppliedAt
	if at.IsZero() {
		at = e.now()
	}
	ent, ok := e.records[o.ID]
	if !ok {
		ent = e.insert(o, domain.ViaManual)
		ent.manualAt = at
		res.New = append(res.New, o.ID)
		metrics.EventsTotal.WithLabelValues("manual", "created").Inc()
		return res
	}
	mergeFields(&ent.rec, o)
	from := ent.rec.Status
	ent.rec.Status = o.Status
	ent.rec.Revision++
	ent.rec.LastSeenVia = domain.ViaManual
	ent.manualAt = at
	res.Changed = append(res.Changed, o.ID)
	metrics.EventsTotal.WithLabelValues("manual", "applied").Inc()
	e.lg.Info("manual_applied", map[string]any{
		"order_id": o.ID, "direction": ev.Direction, "from": from, "to": o.Status,
	})
	return res
}

func (e *Engine) insert(o domain.Order, via domain.Via) *entry {
	ent := &entry{rec: domain.ViewRecord{
		Order:       o,
		LastSeenVia: via,
		Revision:    1,
		Partial:     len(o.Items) == 0,
	}}
	ent.rec = ent.rec.Clone()
	e.records[o.ID] = ent
	e.arrival = append(e.arrival, o.ID)
	return ent
}

// mergeFields copies non-status fields the source actually carries.
func mergeFields(rec *domain.ViewRecord, o domain.Order) bool {
	changed := false
	if o.StudentID != "" && o.StudentID != rec.StudentID {
		rec.StudentID = o.StudentID
		changed = true
	}
	if len(o.Items) > 0 && !slices.Equal(o.Items, rec.Items) {
		rec.Items = append([]domain.OrderItem(nil), o.Items...)
		changed = true
	}
	if len(o.Items) > 0 && rec.Partial {
		rec.Partial = false
		changed = true
	}
	if o.Note != nil && (rec.Note == nil || *rec.Note != *o.Note) {
		n := *o.Note
		rec.Note = &n
		changed = true
	}
	if !o.CreatedAt.IsZero() && !o.CreatedAt.Equal(rec.CreatedAt) {
		rec.CreatedAt = o.CreatedAt
		changed = true
	}
	if !o.UpdatedAt.IsZero() && o.UpdatedAt.After(rec.UpdatedAt) {
		rec.UpdatedAt = o.UpdatedAt
		changed = true
	}
	return changed
}

// NoteFetchFailure keeps the current view and marks it stale.
func (e *Engine) NoteFetchFailure(err error, at time.Time) {
	if e.closed || err == nil {
		return
	}
	e.lastFetchErr = err.Error()
	e.lastFetchErrAt = at
}

// Expire drops elapsed highlights and reports whether any were removed.
func (e *Engine) Expire() bool {
	now := e.now()
	removed := false
	for id, until := range e.highlight {
		if !until.After(now) {
			delete(e.highlight, id)
			removed = true
		}
	}
	return removed
}

// NextExpiry returns the earliest pending highlight expiry.
func (e *Engine) NextExpiry() (time.Time, bool) {
	var next time.Time
	for _, until := range e.highlight {
		if next.IsZero() || until.Before(next) {
			next = until
		}
	}
	return next, !next.IsZero()
}

// Status returns the current status of a known order.
func (e *Engine) Status(id string) (domain.Status, bool) {
	ent, ok := e.records[id]
	if !ok {
		return "", false
	}
	return ent.rec.Status, true
}

// Close ends the session: every record is dropped and later events are refused.
func (e *Engine) Close() {
	e.closed = true
	e.records = make(map[string]*entry)
	e.arrival = nil
	e.highlight = make(map[string]time.Time)
	metrics.RecordsKnown.Set(0)
}

func (e *Engine) Closed() bool { return e.closed }
