package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type OrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type Order struct {
	ID        string      `json:"order_id"`
	StudentID string      `json:"student_id,omitempty"`
	Items     []OrderItem `json:"items,omitempty"`
	Note      *string     `json:"special_notes,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
	Status    Status      `json:"status"`
}

// Validate checks the invariants a snapshot row must hold. Items may be empty:
// single-order endpoints report status only.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("order id is empty")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("order %s: invalid quantity %d for item %s", o.ID, it.Quantity, it.MenuItemID)
		}
	}
	if !o.CreatedAt.IsZero() && !o.UpdatedAt.IsZero() && o.UpdatedAt.Before(o.CreatedAt) {
		return fmt.Errorf("order %s: updated_at before created_at", o.ID)
	}
	return nil
}

// Via tags the channel that last touched a record.
type Via string

const (
	ViaPoll   Via = "poll"
	ViaPush   Via = "push"
	ViaManual Via = "manual"
)

// ViewRecord is the merged per-order state owned by the engine.
type ViewRecord struct {
	Order
	LastSeenVia Via    `json:"last_seen_via"`
	Revision    uint64 `json:"revision"`
	// Partial is set while only the push channel has seen the order.
	Partial bool `json:"partial"`
}

// Clone copies the record including its item slice.
func (r ViewRecord) Clone() ViewRecord {
	out := r
	if r.Items != nil {
		out.Items = append([]OrderItem(nil), r.Items...)
	}
	if r.Note != nil {
		n := *r.Note
		out.Note = &n
	}
	return out
}

type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
	BackingOff   ConnState = "backing_off"
)

type ConnectionState struct {
	State     ConnState `json:"state"`
	Retries   int       `json:"retries"`
	NextRetry time.Time `json:"next_retry,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type HealthStatus string

const (
	Healthy  HealthStatus = "healthy"
	Degraded HealthStatus = "degraded"
	Unknown  HealthStatus = "unknown"
	Checking HealthStatus = "checking"
)

type HealthSnapshot struct {
	Service      string            `json:"service"`
	Status       HealthStatus      `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Latency      time.Duration     `json:"latency_ns"`
	CheckedAt    time.Time         `json:"checked_at"`
	Error        string            `json:"error,omitempty"`
}

type ChaosState struct {
	Enabled   bool      `json:"enabled"`
	Known     bool      `json:"known"`
	CheckedAt time.Time `json:"checked_at"`
}
