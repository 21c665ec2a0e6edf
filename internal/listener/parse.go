package listener

import (
	"encoding/json"
	"strings"
	"time"

	"order-sync/internal/domain"
)

// ParsePayload turns a push payload into an event for orderID.
// Payloads that are not JSON, carry an unknown status or belong to another
// order are reported as not ok and must be dropped.
func ParsePayload(orderID string, data []byte, at time.Time) (domain.PushEvent, bool) {
	var msg domain.StatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.PushEvent{}, false
	}
	if id := strings.TrimSpace(msg.OrderID); id != "" && id != orderID {
		return domain.PushEvent{}, false
	}
	st, ok := domain.ParseStatus(msg.Status)
	if !ok {
		return domain.PushEvent{}, false
	}
	return domain.PushEvent{OrderID: orderID, Status: st, ReceivedAt: at}, true
}
