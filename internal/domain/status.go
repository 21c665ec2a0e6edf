package domain

import "strings"

type Status string

const (
	StatusPending       Status = "pending"
	StatusStockVerified Status = "stock_verified"
	StatusInKitchen     Status = "in_kitchen"
	StatusReady         Status = "ready"
	StatusFailed        Status = "failed"
)

// Direction of an operator command.
type Direction string

const (
	Advance Direction = "advance"
	Revert  Direction = "revert"
)

// sequence is the happy path; failed sits outside it.
var sequence = []Status{StatusPending, StatusStockVerified, StatusInKitchen, StatusReady}

var ordinal = map[Status]int{
	StatusPending:       0,
	StatusStockVerified: 1,
	StatusInKitchen:     2,
	StatusReady:         3,
	StatusFailed:        4,
}

// ParseStatus accepts any casing ("IN_KITCHEN" from the kitchen database, "in_kitchen" on the wire).
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	_, ok := ordinal[st]
	return st, ok
}

func (s Status) Valid() bool { _, ok := ordinal[s]; return ok }

// Ordinal is the position in the lifecycle; failed ranks after every other status.
func (s Status) Ordinal() int {
	if o, ok := ordinal[s]; ok {
		return o
	}
	return -1
}

func (s Status) Terminal() bool { return s == StatusReady || s == StatusFailed }

func (s Status) String() string { return string(s) }

// IsLegalAutomaticTransition reports whether a backend-driven change from -> to may be applied:
// one step forward along the sequence, or any non-terminal status to failed.
func IsLegalAutomaticTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return to.Ordinal() == from.Ordinal()+1
}

// IsReachable reports whether to can be reached from from through a chain of legal
// automatic transitions. Snapshots may skip steps that happened between two polls.
func IsReachable(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() || from == to {
		return false
	}
	return to.Ordinal() > from.Ordinal()
}

// LegalManualTransition returns the status an operator command leads to.
// advance: any non-terminal status moves one step forward.
// revert: stock_verified, in_kitchen and ready move one step back.
func LegalManualTransition(from Status, dir Direction) (Status, bool) {
	switch dir {
	case Advance:
		if !from.Valid() || from.Terminal() {
			return "", false
		}
		return sequence[from.Ordinal()+1], true
	case Revert:
		switch from {
		case StatusStockVerified, StatusInKitchen, StatusReady:
			return sequence[from.Ordinal()-1], true
		}
	}
	return "", false
}

// Statuses lists every status in board column order.
func Statuses() []Status {
	return []Status{StatusPending, StatusStockVerified, StatusInKitchen, StatusReady, StatusFailed}
}

func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Advance, Revert:
		return d, true
	}
	return "", false
}
