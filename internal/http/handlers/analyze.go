package handlers

import (
	"net/http"
	"strings"

	"loom/internal/prompt"
	"loom/internal/providers/image"
)

type analyzeRequest struct {
	ReferenceImage string `json:"referenceImage"`
	Text           string `json:"text"`
}

type analyzeResponse struct {
	Description string `json:"description"`
	Text        string `json:"text"`
}

// Analyze describes a reference photo. Analyzer failures fall back to a fixed
// description and are never reported to the caller.
func (a *App) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ReferenceImage) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "referenceImage required")
		return
	}
	desc := prompt.CleanDescription(image.Describe(r.Context(), a.Analyzer, req.ReferenceImage, &a.Logger))
	a.json(w, http.StatusOK, analyzeResponse{
		Description: desc,
		Text:        prompt.AppendDescription(req.Text, desc),
	})
}
