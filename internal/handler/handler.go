package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/autograde/internal/auth"
	"github.com/pavelanni/autograde/internal/authoring"
	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/importer"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/review"
	"github.com/pavelanni/autograde/internal/session"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	Auth      *auth.Authenticator
	Authoring *authoring.Service
	Sessions  *session.Manager
	Review    *review.Service
	Importer  *importer.Importer
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	auth      *auth.Authenticator
	authoring *authoring.Service
	sessions  *session.Manager
	review    *review.Service
	importer  *importer.Importer
	config    model.ServerConfig
}

// New creates a new Handler.
func New(d Deps, cfg model.ServerConfig) (*Handler, error) {
	switch {
	case d.Auth == nil:
		return nil, errors.New("handler: auth service is required")
	case d.Authoring == nil:
		return nil, errors.New("handler: authoring service is required")
	case d.Sessions == nil:
		return nil, errors.New("handler: session manager is required")
	case d.Review == nil:
		return nil, errors.New("handler: review service is required")
	case d.Importer == nil:
		return nil, errors.New("handler: importer is required")
	}
	if cfg.SubmitWait <= 0 {
		cfg.SubmitWait = model.DefaultSubmitWait
	}
	return &Handler{
		auth:      d.Auth,
		authoring: d.Authoring,
		sessions:  d.Sessions,
		review:    d.Review,
		importer:  d.Importer,
		config:    cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/csrf", h.handleCSRF)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/logout", h.handleLogout)
			r.Get("/me", h.handleMe)
			r.Get("/dashboard", h.handleDashboard)
			r.Get("/results/{resultID}", h.handleResult)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleStudent))
				r.Get("/exams/published", h.handlePublishedExams)
				r.Post("/exams/{examID}/sessions", h.handleStartSession)
				r.Get("/sessions/{sessionID}", h.handleGetSession)
				r.Delete("/sessions/{sessionID}", h.handleDiscardSession)
				r.Post("/sessions/{sessionID}/goto", h.handleGoTo)
				r.Post("/sessions/{sessionID}/next", h.handleNext)
				r.Post("/sessions/{sessionID}/previous", h.handlePrevious)
				r.Put("/sessions/{sessionID}/answers/{questionID}", h.handleSetAnswer)
				r.Post("/sessions/{sessionID}/flag", h.handleToggleFlag)
				r.Post("/sessions/{sessionID}/submit", h.handleSubmit)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
				r.Get("/exams", h.handleListExams)
				r.Post("/exams", h.handleCreateExam)
				r.Post("/exams/import", h.handleImportExams)
				r.Get("/exams/{examID}", h.handleGetExam)
				r.Put("/exams/{examID}", h.handleUpdateExam)
				r.Delete("/exams/{examID}", h.handleDeleteExam)
				r.Post("/exams/{examID}/publish", h.handlePublishExam)
				r.Get("/exams/{examID}/submissions", h.handleSubmissions)
				r.Get("/exams/{examID}/export", h.handleExport)
				r.Put("/submissions/{submissionID}/score", h.handleEditScore)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/admin/users", h.handleAdminUsers)
				r.Post("/admin/users", h.handleCreateUser)
				r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
			})
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_sessions": h.sessions.Active()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrBadRequest", err.Error())
		return false
	}
	return true
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID, detail string) {
	writeJSON(w, status, errorBody{Error: appI18n.T(r.Context(), msgID), Message: detail})
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *model.ValidationError
		nf *model.NotFoundError
		ae *model.AuthError
		ge *model.GradingError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   appI18n.T(r.Context(), "ErrValidation"),
			Message: ve.Message,
			Fields:  ve.Fields,
		})
	case errors.As(err, &nf):
		writeMessage(w, r, http.StatusNotFound, "ErrNotFound", nf.Error())
	case errors.As(err, &ae):
		writeMessage(w, r, http.StatusUnauthorized, "ErrUnauthorized", ae.Reason)
	case errors.As(err, &ge):
		slog.Warn("grading failed", "exam_id", ge.ExamID, "error", ge.Err)
		writeMessage(w, r, http.StatusBadGateway, "ErrGrading", "")
	case errors.Is(err, session.ErrNotInProgress):
		writeMessage(w, r, http.StatusConflict, "ErrNotInProgress", "")
	case errors.Is(err, session.ErrTimeExpired):
		writeMessage(w, r, http.StatusConflict, "ErrTimeExpired", "")
	case errors.Is(err, session.ErrIndexOutOfRange):
		writeMessage(w, r, http.StatusUnprocessableEntity, "ErrIndexOutOfRange", err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "ErrInternal", "")
	}
}

func currentUser(r *http.Request) *model.User {
	return model.UserFromContext(r.Context())
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, model.NewValidationError("invalid %s: %q", name, chi.URLParam(r, name))
	}
	return v, nil
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
