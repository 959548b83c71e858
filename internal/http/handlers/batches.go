package handlers

import (
	"errors"
	"net/http"

	"loom/internal/domain"
	"loom/internal/studio"
)

type batchRequest struct {
	Text           string   `json:"text"`
	Poses          []string `json:"poses"`
	AspectRatio    string   `json:"aspectRatio"`
	ReferenceImage string   `json:"referenceImage"`
}

type batchResponse struct {
	BatchID    string        `json:"batchId"`
	TaskIDs    []string      `json:"taskIds"`
	Tasks      []domain.Task `json:"tasks"`
	Generating bool          `json:"generating"`
}

func (a *App) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !a.decode(w, r, &req) {
		return
	}
	batch, err := a.Studio.Submit(r.Context(), studio.Submission{
		Text:           req.Text,
		Poses:          req.Poses,
		AspectRatio:    domain.AspectRatio(req.AspectRatio),
		ReferenceImage: req.ReferenceImage,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case errors.Is(err, studio.ErrBusy):
		a.error(w, http.StatusConflict, "busy", "a batch is already generating")
		return
	case errors.Is(err, studio.ErrMissingCredential):
		a.error(w, http.StatusPreconditionFailed, "credential_required", "API Key is missing. Please select an API key using the key icon in the header.")
		return
	case errors.Is(err, studio.ErrClosed):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "studio is shutting down")
		return
	case err != nil:
		a.Logger.Error().Err(err).Msg("submit batch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start batch")
		return
	}
	if batch == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	st := a.Studio.Snapshot()
	a.json(w, http.StatusAccepted, batchResponse{
		BatchID:    batch.ID,
		TaskIDs:    batch.TaskIDs,
		Tasks:      st.Tasks,
		Generating: st.Generating,
	})
}
