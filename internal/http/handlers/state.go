package handlers

import (
	"errors"
	"net/http"

	"loom/internal/domain"
	"loom/internal/studio"
)

type themeRequest struct {
	Theme string `json:"theme"`
}

func (a *App) State(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Studio.Snapshot())
}

func (a *App) Poses(w http.ResponseWriter, r *http.Request) {
	catalog := a.Studio.Expander().Catalog()
	a.json(w, http.StatusOK, map[string]any{
		"poses":   catalog.Poses(),
		"default": catalog.DefaultTag(),
	})
}

func (a *App) GetBrand(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Studio.Snapshot().Brand)
}

func (a *App) PutBrand(w http.ResponseWriter, r *http.Request) {
	var brand domain.BrandSettings
	if !a.decode(w, r, &brand) {
		return
	}
	st := a.Studio.UpdateBrand(brand)
	a.json(w, http.StatusOK, st.Brand)
}

func (a *App) TrainBrand(w http.ResponseWriter, r *http.Request) {
	st, err := a.Studio.TrainBrand()
	switch {
	case errors.Is(err, studio.ErrTrainingInProgress):
		a.error(w, http.StatusConflict, "training_in_progress", "brand training is already running")
		return
	case errors.Is(err, studio.ErrClosed):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "studio is shutting down")
		return
	case err != nil:
		a.error(w, http.StatusInternalServerError, "internal", "failed to start training")
		return
	}
	a.json(w, http.StatusAccepted, st)
}

func (a *App) PutTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.json(w, http.StatusOK, a.Studio.SetTheme(domain.Theme(req.Theme)))
}
