package api

import (
	"go-fetch-pipeline/internal/api/handler"
	"go-fetch-pipeline/pkg/router"

	_ "go-fetch-pipeline/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/outcomes", h.GetRunOutcomes)
	r.GET("/api/v1/runs/*/download", h.DownloadResults)
	// Generic run route last
	r.GET("/api/v1/runs/*", h.GetRun)

	r.Prefix("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
