package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/autograde/internal/authoring"
	"github.com/pavelanni/autograde/internal/store"
)

const maxUploadBytes = 10 << 20

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.authoring.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exams == nil {
		exams = []store.ExamSummary{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var in authoring.ExamInput
	if !decodeJSON(w, r, &in) {
		return
	}
	exam, err := h.authoring.Create(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", h.path("/api/exams/"+exam.ID))
	writeJSON(w, http.StatusCreated, exam)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.authoring.Get(r.Context(), currentUser(r), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	var in authoring.ExamInput
	if !decodeJSON(w, r, &in) {
		return
	}
	exam, err := h.authoring.Update(r.Context(), currentUser(r), chi.URLParam(r, "examID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.authoring.Delete(r.Context(), currentUser(r), chi.URLParam(r, "examID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePublishExam(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if err := h.authoring.Publish(r.Context(), currentUser(r), examID); err != nil {
		writeError(w, r, err)
		return
	}
	exam, err := h.authoring.Get(r.Context(), currentUser(r), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

// handleImportExams accepts a multipart upload in the exam import format.
// publish=true opens the imported exams to students right away.
func (h *Handler) handleImportExams(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrBadRequest", "file too large or not multipart")
		return
	}
	file, header, err := r.FormFile("exams_file")
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrBadRequest", "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	publish, _ := strconv.ParseBool(r.FormValue("publish"))

	report, err := h.importer.Import(r.Context(), currentUser(r), filepath.Base(header.Filename), data, publish)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if report.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, report)
}
