package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"loom/internal/domain"
	"loom/pkg/zip"
)

func (a *App) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	a.json(w, http.StatusOK, a.Studio.Delete(id))
}

func (a *App) ClearTasks(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Studio.Clear())
}

func (a *App) TaskImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := a.Studio.Task(id)
	if !ok || task.Status != domain.TaskStatusCompleted {
		a.error(w, http.StatusNotFound, "not_found", "no image for task")
		return
	}
	mime, data, err := domain.DecodeDataURI(task.ImageURL)
	if err != nil {
		a.Logger.Error().Err(err).Str("task_id", id).Msg("decode task image failed")
		a.error(w, http.StatusInternalServerError, "internal", "stored image is unreadable")
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", imageFilename(task.ID, mime)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) ExportTasks(w http.ResponseWriter, r *http.Request) {
	var assets []zip.Asset
	for _, task := range a.Studio.Snapshot().Tasks {
		if task.Status != domain.TaskStatusCompleted {
			continue
		}
		mime, data, err := domain.DecodeDataURI(task.ImageURL)
		if err != nil {
			a.Logger.Warn().Err(err).Str("task_id", task.ID).Msg("skipping unreadable image in export")
			continue
		}
		assets = append(assets, zip.Asset{Filename: imageFilename(task.ID, mime), MIME: mime, Data: data, Modified: task.CreatedAt()})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no completed images to export")
		return
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.Logger.Error().Err(err).Msg("build export archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=loom-export.zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func imageFilename(id, mime string) string {
	return "loom-" + id + domain.ImageExtension(mime)
}
