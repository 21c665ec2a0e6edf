package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

const timeFormat = time.RFC3339Nano

// writeJSON — отдаёт JSON с нужным статусом
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem — единый формат ошибок (RFC7807 Problem+JSON, упрощённый)
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	resp := map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func param(r *http.Request, key string) string {
	return r.PathValue(key)
}
