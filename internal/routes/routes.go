package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tikuhub/qbank/internal/app"
	"github.com/tikuhub/qbank/internal/handler"
	"github.com/tikuhub/qbank/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB, app.JobRepository)
	downloads := handler.NewDownloadHandler(app.DownloadService)
	questions := handler.NewQuestionHandler(app.DownloadRequestService)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	rateLimiter := middleware.RateLimitAPI()
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return rateLimiter(middleware.RequireAuth(h))
	}

	// Questions
	mux.HandleFunc("POST /api/questions/download-group", protected(questions.DownloadGroup))
	mux.HandleFunc("GET /api/questions/downloaded", protected(questions.Downloaded))
	mux.HandleFunc("POST /api/questions/reset-downloaded", protected(questions.ResetDownloaded))

	// Downloads
	mux.HandleFunc("GET /api/downloads", protected(downloads.List))
	mux.HandleFunc("GET /api/downloads/file/{id}/{type}", protected(downloads.File))
	mux.HandleFunc("GET /api/downloads/{id}", protected(downloads.Get))

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.SecurityHeaders,
		middleware.RequestLogging,
		middleware.AuthMiddleware(app.AuthService),
	)

	return handler
}
