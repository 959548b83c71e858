package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"loom/internal/http/handlers"
	"loom/internal/infra"
	"loom/internal/middleware"
)

// Options tunes the router's middleware.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	Logger             *infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(infra.OrDiscard(opts.Logger)),
		chimw.Recoverer,
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/state", app.State)
		r.Get("/poses", app.Poses)

		r.With(limited).Post("/batches", app.SubmitBatch)
		r.With(limited).Post("/analyze", app.Analyze)

		r.Route("/tasks", func(r chi.Router) {
			r.Delete("/", app.ClearTasks)
			r.Get("/export", app.ExportTasks)
			r.Delete("/{id}", app.DeleteTask)
			r.Get("/{id}/image", app.TaskImage)
		})

		r.Route("/brand", func(r chi.Router) {
			r.Get("/", app.GetBrand)
			r.Put("/", app.PutBrand)
			r.Post("/train", app.TrainBrand)
		})

		r.Put("/theme", app.PutTheme)

		r.Get("/credential", app.CredentialStatus)
		r.Post("/credential", app.SelectCredential)
	})

	return r
}
