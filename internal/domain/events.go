package domain

import "time"

// Event is one of SnapshotEvent, PushEvent or ManualEvent.
type Event interface {
	isEvent()
	Kind() string
}

// SnapshotEvent is a full-list read of order state.
type SnapshotEvent struct {
	Orders      []Order
	StartedAt   time.Time
	CompletedAt time.Time
}

// PushEvent is an incremental status notification.
type PushEvent struct {
	OrderID    string
	Status     Status
	ReceivedAt time.Time
}

// ManualEvent carries the backend's answer to an operator command.
type ManualEvent struct {
	Order     Order
	Direction Direction
	AppliedAt time.Time
}

func (SnapshotEvent) isEvent() {}
func (PushEvent) isEvent()     {}
func (ManualEvent) isEvent()   {}

func (SnapshotEvent) Kind() string { return "snapshot" }
func (PushEvent) Kind() string     { return "push" }
func (ManualEvent) Kind() string   { return "manual" }
