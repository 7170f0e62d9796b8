package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/session"
	"github.com/pavelanni/autograde/internal/store"
)

// sessionResponse is a session view with localised display strings.
type sessionResponse struct {
	session.View
	TimeRemaining string            `json:"time_remaining_text"`
	AnsweredText  string            `json:"answered_text"`
	Warning       string            `json:"warning,omitempty"`
	Result        *model.ExamResult `json:"result,omitempty"`
}

func (h *Handler) sessionJSON(r *http.Request, s *session.Session) sessionResponse {
	v := s.Snapshot()
	ctx := r.Context()
	resp := sessionResponse{
		View:          v,
		TimeRemaining: appI18n.Td(ctx, "TimeRemaining", map[string]any{"Clock": v.RemainingText}),
		AnsweredText:  appI18n.Tp(ctx, "QuestionsAnswered", v.AnsweredCount),
		Result:        s.Result(),
	}
	if v.State == session.StateInProgress && v.LowTime {
		resp.Warning = appI18n.T(ctx, "LowTimeWarning")
	}
	if v.Error != "" {
		resp.Error = appI18n.T(ctx, "ErrGrading")
	}
	return resp
}

func (h *Handler) handlePublishedExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.review.PublishedExams(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exams == nil {
		exams = []store.ExamSummary{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Start(r.Context(), currentUser(r), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", h.path("/api/sessions/"+s.ID()))
	writeJSON(w, http.StatusCreated, h.sessionJSON(r, s))
}

// withSession loads the caller's live session and hands it to fn. A nil
// error from fn answers with the current view.
func (h *Handler) withSession(fn func(r *http.Request, s *session.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Get(chi.URLParam(r, "sessionID"), currentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if fn != nil {
			if err := fn(r, s); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, h.sessionJSON(r, s))
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(nil)(w, r)
}

func (h *Handler) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Discard(chi.URLParam(r, "sessionID"), currentUser(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gotoRequest struct {
	Index int `json:"index"`
}

func (h *Handler) handleGoTo(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withSession(func(_ *http.Request, s *session.Session) error {
		return s.GoTo(req.Index)
	})(w, r)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.withSession(func(_ *http.Request, s *session.Session) error {
		return s.Next()
	})(w, r)
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	h.withSession(func(_ *http.Request, s *session.Session) error {
		return s.Previous()
	})(w, r)
}

type answerRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.withSession(func(r *http.Request, s *session.Session) error {
		return s.SetAnswer(chi.URLParam(r, "questionID"), req.Text)
	})(w, r)
}

func (h *Handler) handleToggleFlag(w http.ResponseWriter, r *http.Request) {
	h.withSession(func(_ *http.Request, s *session.Session) error {
		return s.ToggleFlagCurrent()
	})(w, r)
}

// handleSubmit starts grading and waits a bounded time for the outcome.
// It answers 200 with the result, 202 while grading is still running, or
// the grading error after the session has been reopened.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	done, started := s.Submit(r.Context(), session.TriggerManual)
	if !started {
		status := http.StatusAccepted
		if s.State() == session.StateSubmitted {
			status = http.StatusOK
		}
		writeJSON(w, status, h.sessionJSON(r, s))
		return
	}

	timer := time.NewTimer(h.config.SubmitWait)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.sessionJSON(r, s))
	case <-timer.C:
		writeJSON(w, http.StatusAccepted, h.sessionJSON(r, s))
	case <-r.Context().Done():
	}
}
