package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/yunseol/pyeongeo/internal/model"
	"github.com/yunseol/pyeongeo/internal/pdftext"
	"github.com/yunseol/pyeongeo/internal/session"
	"github.com/yunseol/pyeongeo/internal/store"
)

// ModelClient is the slice of the LLM client the handlers need.
// Implemented by llm.Client; tests substitute fakes.
type ModelClient interface {
	ExtractEvaluationData(ctx context.Context, rawText string) (model.EvaluationData, error)
	GenerateComment(ctx context.Context, student model.StudentData, data model.EvaluationData) (string, error)
}

// ClientFactory builds a model client from per-user settings. Returns
// llm.ErrNotConfigured when the settings are incomplete.
type ClientFactory func(model.ModelSettings) (ModelClient, error)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	sessions  *session.Manager
	extractor pdftext.Extractor
	newClient ClientFactory
	config    model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, sessions *session.Manager, extractor pdftext.Extractor, newClient ClientFactory, cfg model.ServerConfig) *Handler {
	return &Handler{
		store:     s,
		sessions:  sessions,
		extractor: extractor,
		newClient: newClient,
		config:    cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)

		r.Get("/api/state", h.handleState)
		r.Post("/api/upload", h.handleUpload)
		r.Post("/api/reanalyze", h.handleReanalyze)
		r.Post("/api/review/confirm", h.handleConfirmReview)
		r.Post("/api/restart", h.handleRestart)

		r.Post("/api/students/count", h.handleStudentCount)
		r.Post("/api/subject", h.handleSubject)
		r.Post("/api/students/{id}", h.handleUpdateStudent)
		r.Post("/api/students/{id}/generate", h.handleGenerate)
		r.Post("/api/students/{id}/confirm", h.handleConfirmStudent)
		r.Post("/api/students/{id}/auto-select", h.handleAutoSelect)

		r.Post("/api/auto-select-all", h.handleAutoSelectAll)
		r.Post("/api/bulk-defaults", h.handleBulkDefaults)
		r.Post("/api/bulk-apply", h.handleBulkApply)
		r.Post("/api/generate-all", h.handleGenerateAll)
		r.Post("/api/confirm-all", h.handleConfirmAll)
		r.Get("/api/download", h.handleDownload)

		r.Post("/api/evaluations", h.handleSaveEvaluation)
		r.Get("/api/evaluations", h.handleListEvaluations)
		r.Post("/api/evaluations/{id}/load", h.handleLoadEvaluation)
		r.Delete("/api/evaluations/{id}", h.handleDeleteEvaluation)

		r.Get("/api/settings", h.handleGetSettings)
		r.Post("/api/settings", h.handleSetSettings)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{id}/toggle", h.handleToggleUser)
		})
	})
}

// userSession returns the in-memory workflow session for the request's user.
func (h *Handler) userSession(ctx context.Context) *session.Session {
	user := model.UserFromContext(ctx)
	return h.sessions.Get(user.ID)
}
