package handlers

import (
	"net/http"
	"strings"

	"loom/internal/infra/credentials"
)

type credentialRequest struct {
	Key string `json:"key"`
}

func (a *App) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]bool{"hasCredential": credentials.Check(r.Context(), a.Gate, &a.Logger)})
}

func (a *App) SelectCredential(w http.ResponseWriter, r *http.Request) {
	if a.Gate == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "credential selection is not available")
		return
	}
	var req credentialRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "key required")
		return
	}
	if err := a.Gate.SelectCredential(r.Context(), req.Key); err != nil {
		a.Logger.Error().Err(err).Msg("select credential failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store credential")
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"hasCredential": true})
}
