package engine

import (
	"sort"
	"time"

	"order-sync/internal/domain"
)

// Summary mirrors the counters on the kitchen board header.
type Summary struct {
	Active int `json:"active"`
	Ready  int `json:"ready"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// View is a point-in-time copy of the engine state. It is never mutated after creation.
type View struct {
	Records        []domain.ViewRecord    `json:"records"`
	Highlighted    []string               `json:"highlighted"`
	Summary        Summary                `json:"summary"`
	LastSnapshotAt time.Time              `json:"last_snapshot_at"`
	Stale          bool                   `json:"stale"`
	LastFetchError string                 `json:"last_fetch_error,omitempty"`
	Connection     domain.ConnectionState `json:"connection"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

// View materialises the current state in arrival order.
func (e *Engine) View() *View {
	now := e.now()
	v := &View{
		Records:        make([]domain.ViewRecord, 0, len(e.arrival)),
		Highlighted:    []string{},
		LastSnapshotAt: e.lastSnapshotAt,
		Stale:          e.lastFetchErr != "",
		LastFetchError: e.lastFetchErr,
		Connection:     domain.ConnectionState{State: domain.Disconnected},
		GeneratedAt:    now,
	}
	for _, id := range e.arrival {
		ent := e.records[id]
		v.Records = append(v.Records, ent.rec.Clone())
		switch ent.rec.Status {
		case domain.StatusReady:
			v.Summary.Ready++
		case domain.StatusFailed:
			v.Summary.Failed++
		default:
			v.Summary.Active++
		}
	}
	v.Summary.Total = len(v.Records)
	for id, until := range e.highlight {
		if until.After(now) {
			v.Highlighted = append(v.Highlighted, id)
		}
	}
	sort.Strings(v.Highlighted)
	return v
}

func (v *View) Record(id string) (domain.ViewRecord, bool) {
	for _, r := range v.Records {
		if r.ID == id {
			return r, true
		}
	}
	return domain.ViewRecord{}, false
}

func (v *View) IsHighlighted(id string) bool {
	i := sort.SearchStrings(v.Highlighted, id)
	return i < len(v.Highlighted) && v.Highlighted[i] == id
}

// ByStatus groups records into board columns, keeping arrival order inside each column.
func (v *View) ByStatus() map[domain.Status][]domain.ViewRecord {
	out := make(map[domain.Status][]domain.ViewRecord, len(domain.Statuses()))
	for _, r := range v.Records {
		out[r.Status] = append(out[r.Status], r)
	}
	return out
}

// WithConnection returns a copy annotated with the push connection state.
func (v *View) WithConnection(cs domain.ConnectionState) *View {
	out := *v
	out.Connection = cs
	return &out
}
