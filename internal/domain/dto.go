package domain

import (
	"strings"
	"time"
)

// OrderDTO is the kitchen service's JSON shape for an order.
type OrderDTO struct {
	OrderID      string      `json:"order_id"`
	StudentID    string      `json:"student_id"`
	Status       string      `json:"status"`
	SpecialNotes *string     `json:"special_notes"`
	CreatedAt    *string     `json:"created_at"`
	UpdatedAt    *string     `json:"updated_at"`
	Items        []OrderItem `json:"items"`
}

// ToOrder maps the wire shape. Unknown statuses are kept verbatim so Validate can reject them.
func (d OrderDTO) ToOrder() Order {
	st, ok := ParseStatus(d.Status)
	if !ok {
		st = Status(d.Status)
	}
	return Order{
		ID:        strings.TrimSpace(d.OrderID),
		StudentID: d.StudentID,
		Items:     d.Items,
		Note:      d.SpecialNotes,
		CreatedAt: parseTime(d.CreatedAt),
		UpdatedAt: parseTime(d.UpdatedAt),
		Status:    st,
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
}

func parseTime(s *string) time.Time {
	if s == nil || *s == "" {
		return time.Time{}
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, *s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type LoginRequest struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type CreateOrderRequest struct {
	Items        []OrderItem `json:"items"`
	SpecialNotes *string     `json:"special_notes,omitempty"`
}

type CreateOrderResponse struct {
	OrderID              string `json:"order_id"`
	Status               string `json:"status"`
	Message              string `json:"message"`
	EstimatedWaitSeconds *int   `json:"estimated_wait_seconds,omitempty"`
}

// StatusMessage is the push payload: {"order_id": "...", "status": "..."}.
type StatusMessage struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	StudentID string `json:"student_id,omitempty"`
}

// ErrorBody covers the backend's error payloads.
type ErrorBody struct {
	Detail            any `json:"detail"`
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

// Message flattens FastAPI-style detail values (string or list of {msg}).
func (b ErrorBody) Message() string {
	switch d := b.Detail.(type) {
	case string:
		return d
	case []any:
		var parts []string
		for _, it := range d {
			if m, ok := it.(map[string]any); ok {
				if s, ok := m["msg"].(string); ok {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
