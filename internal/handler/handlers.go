package handler

type Handler struct {
	BoardHandler  *BoardHandler
	HealthHandler *HealthHandler
}

// New wires the renderer API. Either side may be nil and is then not routed.
func New(board BoardService, monitor HealthService) *Handler {
	h := &Handler{}
	if board != nil {
		h.BoardHandler = NewBoardHandler(board)
	}
	if monitor != nil {
		h.HealthHandler = NewHealthHandler(monitor)
	}
	return h
}
