package handler

import (
	"context"
	"errors"
	"net/http"

	"order-sync/internal/domain"
	"order-sync/internal/engine"
	"order-sync/internal/override"
)

// BoardService is the operator session as the API sees it.
type BoardService interface {
	View() *engine.View
	LastCommand() (override.Result, bool)
	Issue(ctx context.Context, orderID string, dir domain.Direction) error
}

type BoardHandler struct {
	board BoardService
}

func NewBoardHandler(b BoardService) *BoardHandler { return &BoardHandler{board: b} }

type commandView struct {
	OrderID   string           `json:"order_id"`
	Direction domain.Direction `json:"direction"`
	Status    domain.Status    `json:"status,omitempty"`
	Error     string           `json:"error,omitempty"`
	At        string           `json:"at"`
}

func (h *BoardHandler) GetView(w http.ResponseWriter, r *http.Request) {
	v := h.board.View()
	resp := map[string]any{"view": v}
	if r.URL.Query().Get("group") == "status" {
		resp["columns"] = v.ByStatus()
	}
	if last, ok := h.board.LastCommand(); ok {
		cv := commandView{OrderID: last.OrderID, Direction: last.Direction, At: last.At.UTC().Format(timeFormat)}
		if last.Err != nil {
			cv.Error = last.Err.Error()
		} else {
			cv.Status = last.Order.Status
		}
		resp["last_command"] = cv
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BoardHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := param(r, "order_id")
	v := h.board.View()
	rec, ok := v.Record(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":       rec,
		"highlighted": v.IsHighlighted(id),
		"stale":       v.Stale,
	})
}

// Move issues advance or revert, taken from the last path segment.
func (h *BoardHandler) Move(w http.ResponseWriter, r *http.Request) {
	id := param(r, "order_id")
	dir, ok := domain.ParseDirection(param(r, "direction"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "unknown_direction", "direction must be advance or revert")
		return
	}
	err := h.board.Issue(r.Context(), id, dir)
	var te *domain.TransitionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"order_id": id, "direction": dir, "state": "issued"})
	case errors.Is(err, domain.ErrUnknownOrder):
		writeProblem(w, http.StatusNotFound, "unknown_order", err.Error())
	case errors.As(err, &te):
		writeProblem(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, domain.ErrCommandInFlight):
		writeProblem(w, http.StatusConflict, "command_in_flight", err.Error())
	case errors.Is(err, domain.ErrThrottled):
		writeProblem(w, http.StatusTooManyRequests, "throttled", err.Error())
	case errors.Is(err, domain.ErrSessionClosed):
		writeProblem(w, http.StatusServiceUnavailable, "session_closed", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
