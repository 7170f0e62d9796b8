package handler

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/autograde/internal/export"
	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/model"
)

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user.Role == model.UserRoleStudent {
		d, err := h.review.StudentDashboard(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}
	d, err := h.review.TeacherDashboard(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.review.Result(r.Context(), currentUser(r), chi.URLParam(r, "resultID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	list, err := h.review.Submissions(r.Context(), currentUser(r), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type scoreRequest struct {
	Score *float64 `json:"score"`
}

func (h *Handler) handleEditScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Score == nil {
		writeError(w, r, &model.ValidationError{
			Fields:  map[string]string{"score": "is required"},
			Message: "score is required",
		})
		return
	}
	sub, err := h.review.EditScore(r.Context(), currentUser(r), chi.URLParam(r, "submissionID"), *req.Score)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    appI18n.T(r.Context(), "ScoreUpdated"),
		"submission": sub,
	})
}

// handleExport streams an exam's submissions; ?format= picks json, csv or xlsx.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.review.Export(r.Context(), currentUser(r), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Encode fully before writing headers so a failure can still be reported.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, e); err != nil {
		writeError(w, r, err)
		return
	}
	attachment(w, format.ContentType(), export.Filename(e, format))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
