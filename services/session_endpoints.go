package services

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/akashpai/prepvox/backend/models"
	"github.com/go-chi/chi/v5"
)

// maxAudioUpload bounds multipart answer uploads.
const maxAudioUpload = 32 << 20 // 32MB

type SessionEndpoints struct {
	engine  *InterviewEngine
	gateway *EvaluationGateway
}

func NewSessionEndpoints(engine *InterviewEngine, gateway *EvaluationGateway) *SessionEndpoints {
	return &SessionEndpoints{
		engine:  engine,
		gateway: gateway,
	}
}

type CreateSessionRequest struct {
	Role              string   `json:"role"`
	InterviewType     string   `json:"interview_type"`
	YearsOfExperience int      `json:"years_of_experience,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	TotalQuestions    int      `json:"total_questions,omitempty"`
}

type NextQuestionRequest struct {
	YearsOfExperience int `json:"years_of_experience,omitempty"`
}

type HintRequest struct {
	QuestionNumber int `json:"question_number"`
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Post("/transcribe-chunk", e.TranscribeChunkHandler)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", e.CreateSessionHandler)
		r.Get("/", e.ListSessionsHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", e.GetSessionHandler)
			r.Delete("/", e.DeleteSessionHandler)
			r.Patch("/start", e.StartSessionHandler)
			r.Post("/next-question", e.NextQuestionHandler)
			r.Post("/hint", e.HintHandler)
			r.Post("/submit-answer", e.SubmitAnswerHandler)
			r.Post("/tab-switch", e.TabSwitchHandler)
			r.Patch("/complete", e.CompleteSessionHandler)
			r.Get("/results", e.ResultsHandler)
		})
	})
}

func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Role) == "" {
		http.Error(w, "role is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.InterviewType) == "" {
		http.Error(w, "interview_type is required", http.StatusBadRequest)
		return
	}

	session, err := e.engine.CreateSession(r.Context(), user.ID, req.Role, req.InterviewType, req.YearsOfExperience, req.Skills, req.TotalQuestions)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
	})
}

func (e *SessionEndpoints) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessions, err := e.engine.ListSessions(r.Context(), user.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (e *SessionEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
	})
}

func (e *SessionEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	if err := e.engine.DeleteSession(r.Context(), session.ID); err != nil {
		writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *SessionEndpoints) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	started, err := e.engine.StartSession(r.Context(), session.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": started,
	})
}

func (e *SessionEndpoints) NextQuestionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	var req NextQuestionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	next, err := e.engine.GenerateNextQuestion(r.Context(), session.ID, req.YearsOfExperience)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"question":        next.Question,
		"question_number": next.Number,
		"difficulty":      next.Difficulty,
		"category":        next.Category,
		"tested_skills":   next.TestedSkills,
		"audio_base64":    base64.StdEncoding.EncodeToString(next.Audio),
	})
}

func (e *SessionEndpoints) HintHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	var req HintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	hint, err := e.engine.GetQuestionHint(r.Context(), session.ID, req.QuestionNumber)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hint)
}

func (e *SessionEndpoints) SubmitAnswerHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	questionNumber, err := strconv.Atoi(r.FormValue("question_number"))
	if err != nil || questionNumber < 1 {
		http.Error(w, "question_number is required", http.StatusBadRequest)
		return
	}
	yearsOfExperience, _ := strconv.Atoi(r.FormValue("years_of_experience"))

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read audio file", http.StatusBadRequest)
		return
	}

	result, err := e.engine.ProcessAnswer(r.Context(), session.ID, questionNumber, audio, yearsOfExperience)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (e *SessionEndpoints) TabSwitchHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	result, err := e.engine.RecordTabSwitch(r.Context(), session.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (e *SessionEndpoints) CompleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	completed, err := e.engine.CompleteSession(r.Context(), session.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": completed,
	})
}

func (e *SessionEndpoints) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.authorizedSession(w, r)
	if !ok {
		return
	}

	report, err := e.engine.GetResults(r.Context(), session.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// TranscribeChunkHandler serves the live-transcript preview. Failures return
// 503 and the client simply shows no incremental text.
func (e *SessionEndpoints) TranscribeChunkHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("user").(*models.User); !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read audio file", http.StatusBadRequest)
		return
	}

	text, err := e.gateway.TranscribeChunk(r.Context(), audio, r.FormValue("previous_context"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"text": text,
	})
}

// authorizedSession loads the session named in the URL and verifies it
// belongs to the authenticated principal. Sessions owned by other users look
// like 404s so ids are not probeable.
func (e *SessionEndpoints) authorizedSession(w http.ResponseWriter, r *http.Request) (*models.InterviewSession, bool) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return nil, false
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return nil, false
	}

	session, err := e.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	if session.UserID != user.ID {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}

	return session, true
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ErrSessionComplete):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case IsPolicyViolation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case IsUpstream(err):
		slog.Error("Upstream capability failed", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error("Internal error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
