package routes

import (
	"mindmesh/mindmesh/config"
	"mindmesh/mindmesh/controllers"
	"mindmesh/mindmesh/middlewares"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func DigestRoutes(ctrl *controllers.DigestController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(cfg))
	// POST /digest : the caller's weekly digest
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		d, err := ctrl.Weekly(ctx, middlewares.OwnerID(ctx), middlewares.OwnerName(ctx))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	})
	return r
}
