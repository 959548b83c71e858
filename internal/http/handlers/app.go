package handlers

import (
	"encoding/json"
	"net/http"

	"loom/internal/infra"
	"loom/internal/infra/credentials"
	"loom/internal/providers/image"
	"loom/internal/studio"
)

// maxBodyBytes bounds request bodies; reference photos travel inline.
const maxBodyBytes = 20 << 20

// App carries the dependencies shared by every handler.
type App struct {
	Studio   *studio.Studio
	Analyzer image.Analyzer
	Gate     credentials.Gate
	Logger   infra.Logger
}

func NewApp(st *studio.Studio, analyzer image.Analyzer, gate credentials.Gate, logger *infra.Logger) *App {
	return &App{Studio: st, Analyzer: analyzer, Gate: gate, Logger: infra.OrDiscard(logger)}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
