package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/akashpai/prepvox/backend/models"
	"github.com/akashpai/prepvox/backend/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuestionCategories is the fixed ordered set rotated across a session.
// Question n gets category (n-1) mod len(QuestionCategories).
var QuestionCategories = []string{
	"core_concepts",
	"practical_experience",
	"problem_solving",
	"system_design",
	"behavioral",
}

// InterviewEngine owns the session lifecycle: status transitions, question
// progression, answer processing and the anti-cheat counter. It orchestrates
// the EvaluationGateway and the store but contains no HTTP concerns.
type InterviewEngine struct {
	repo             *repository.GORMRepository
	gateway          *EvaluationGateway
	defaultQuestions int
}

func NewInterviewEngine(repo *repository.GORMRepository, gateway *EvaluationGateway, defaultQuestions int) *InterviewEngine {
	if defaultQuestions <= 0 {
		defaultQuestions = 5
	}
	return &InterviewEngine{
		repo:             repo,
		gateway:          gateway,
		defaultQuestions: defaultQuestions,
	}
}

// NextQuestion is the result of one question generation.
type NextQuestion struct {
	Question     string   `json:"question"`
	Number       int      `json:"question_number"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Category     string   `json:"category"`
	TestedSkills []string `json:"tested_skills,omitempty"`
	Audio        []byte   `json:"-"`
}

// AnswerResult is the result of processing one recorded answer.
type AnswerResult struct {
	Transcript string                     `json:"transcript"`
	Evaluation *models.DetailedEvaluation `json:"evaluation"`
}

// TabSwitchResult tells the caller the running count and whether the session
// was just terminated for cheating.
type TabSwitchResult struct {
	TabSwitches     int  `json:"tab_switches"`
	ShouldTerminate bool `json:"should_terminate"`
}

// CreateSession validates the question budget by clamping into [1,20] and
// creates a Pending session. No side effects beyond persistence.
func (e *InterviewEngine) CreateSession(ctx context.Context, userID, role, interviewType string, experienceYears int, skills []string, totalQuestions int) (*models.InterviewSession, error) {
	session := &models.InterviewSession{
		ID:              uuid.New().String(),
		UserID:          userID,
		Role:            strings.TrimSpace(role),
		InterviewType:   strings.TrimSpace(interviewType),
		ExperienceYears: experienceYears,
		Skills:          skills,
		TotalQuestions:  models.ClampTotalQuestions(totalQuestions, e.defaultQuestions),
		Status:          models.StatusPending,
	}

	if err := e.repo.CreateInterviewSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// StartSession moves a Pending session to InProgress and stamps startedAt.
// Starting twice is rejected by the transition table.
func (e *InterviewEngine) StartSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	if !session.Status.CanTransition(models.StatusInProgress) {
		return nil, NewPolicyViolation("cannot start session", "session is %s", session.Status)
	}

	now := time.Now()
	updated, err := e.repo.TransitionSession(ctx, sessionID, session.Status, map[string]interface{}{
		"status":     models.StatusInProgress,
		"started_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	session.Status = models.StatusInProgress
	session.StartedAt = &now
	slog.Info("Interview session started", "session_id", sessionID)
	return session, nil
}

// GenerateNextQuestion produces the next question for a session. The QA
// record is persisted before speech synthesis, so a TTS failure leaves a
// retryable state: the next call finds the existing record and only redoes
// the audio. The session index advances with a compare-and-swap as the last
// step.
func (e *InterviewEngine) GenerateNextQuestion(ctx context.Context, sessionID string, experienceYears int) (*NextQuestion, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if session.Status != models.StatusInProgress {
		if session.Status.IsTerminal() {
			return nil, ErrSessionComplete
		}
		return nil, NewPolicyViolation("cannot generate question", "session is %s", session.Status)
	}
	if session.CurrentQuestionIndex >= session.TotalQuestions {
		return nil, ErrSessionComplete
	}

	if experienceYears == 0 {
		experienceYears = session.ExperienceYears
	}

	nextNumber := session.CurrentQuestionIndex + 1
	category := QuestionCategories[(nextNumber-1)%len(QuestionCategories)]

	qa, err := e.repo.GetQuestionAnswer(ctx, sessionID, nextNumber)
	if err != nil {
		return nil, err
	}
	if qa == nil {
		generated := e.gateway.GenerateQuestion(ctx, session.Role, session.InterviewType, experienceYears, nextNumber, category, session.Skills)

		qa = &models.QuestionAnswer{
			ID:             uuid.New().String(),
			SessionID:      sessionID,
			QuestionNumber: nextNumber,
			QuestionText:   generated.Text,
			Category:       category,
			Difficulty:     generated.Difficulty,
			TestedSkills:   generated.TestedSkills,
		}
		if err := e.repo.CreateQuestionAnswer(ctx, qa); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent generation won the insert; reuse its question.
				qa, err = e.repo.GetQuestionAnswer(ctx, sessionID, nextNumber)
				if err != nil {
					return nil, err
				}
				if qa == nil {
					return nil, ErrConflict
				}
			} else {
				return nil, err
			}
		}
	} else {
		slog.Info("Reusing existing question after failed enrichment", "session_id", sessionID, "question_number", nextNumber)
	}

	audio, err := e.gateway.SynthesizeSpeech(ctx, qa.QuestionText)
	if err != nil {
		// Index stays put so the client can retry; the QA record survives.
		return nil, err
	}

	advanced, err := e.repo.AdvanceQuestionIndex(ctx, sessionID, session.CurrentQuestionIndex)
	if err != nil {
		return nil, err
	}
	if !advanced {
		return nil, ErrConflict
	}

	slog.Info("Question generated",
		"session_id", sessionID,
		"question_number", nextNumber,
		"category", qa.Category,
		"difficulty", qa.Difficulty)

	return &NextQuestion{
		Question:     qa.QuestionText,
		Number:       nextNumber,
		Difficulty:   qa.Difficulty,
		Category:     qa.Category,
		TestedSkills: qa.TestedSkills,
		Audio:        audio,
	}, nil
}

// GetQuestionHint returns a hint for a question, gated to difficulty "hard".
func (e *InterviewEngine) GetQuestionHint(ctx context.Context, sessionID string, questionNumber int) (*Hint, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	qa, err := e.repo.GetQuestionAnswer(ctx, sessionID, questionNumber)
	if err != nil {
		return nil, err
	}
	if qa == nil {
		return nil, ErrNotFound
	}

	if qa.Difficulty != models.DifficultyHard {
		difficulty := qa.Difficulty
		if difficulty == "" {
			difficulty = "unset"
		}
		return nil, NewPolicyViolation("hints are only available for hard questions", "question %d is %s", questionNumber, difficulty)
	}

	return e.gateway.GenerateHint(ctx, qa.QuestionText, session.Role, session.InterviewType), nil
}

// ProcessAnswer transcribes and evaluates a recorded answer, then writes all
// answer fields onto the QA record in one update. Resubmission overwrites.
func (e *InterviewEngine) ProcessAnswer(ctx context.Context, sessionID string, questionNumber int, audio []byte, experienceYears int) (*AnswerResult, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	qa, err := e.repo.GetQuestionAnswer(ctx, sessionID, questionNumber)
	if err != nil {
		return nil, err
	}
	if qa == nil {
		return nil, ErrNotFound
	}

	if experienceYears == 0 {
		experienceYears = session.ExperienceYears
	}

	transcribeStart := time.Now()
	transcript, err := e.gateway.TranscribeAudio(ctx, audio)
	if err != nil {
		// Transient; the client still holds the audio and can retry.
		return nil, err
	}
	duration := time.Since(transcribeStart).Seconds()

	evaluation := e.gateway.EvaluateAnswer(ctx, qa.QuestionText, transcript, session.Role, experienceYears, questionNumber)
	wordCount := len(strings.Fields(transcript))
	now := time.Now()

	updates := map[string]interface{}{
		"transcript":              transcript,
		"overall_score":           evaluation.OverallScore,
		"technical_accuracy":      evaluation.TechnicalAccuracy,
		"communication_clarity":   evaluation.CommunicationClarity,
		"depth_of_knowledge":      evaluation.DepthOfKnowledge,
		"problem_solving":         evaluation.ProblemSolving,
		"role_relevance":          evaluation.RoleRelevance,
		"feedback":                evaluation.Feedback,
		"strengths":               evaluation.Strengths,
		"improvements":            evaluation.Improvements,
		"key_insights":            evaluation.KeyInsights,
		"red_flags":               evaluation.RedFlags,
		"follow_up_questions":     evaluation.FollowUpQuestions,
		"word_count":              wordCount,
		"answer_duration_seconds": duration,
		"confidence":              evaluation.Confidence,
		"answered_at":             now,
	}
	if err := e.repo.UpdateQuestionAnswerEvaluation(ctx, qa.ID, updates); err != nil {
		return nil, err
	}

	slog.Info("Answer processed",
		"session_id", sessionID,
		"question_number", questionNumber,
		"overall_score", evaluation.OverallScore,
		"word_count", wordCount)

	return &AnswerResult{
		Transcript: transcript,
		Evaluation: evaluation,
	}, nil
}

// RecordTabSwitch counts a detected focus loss. Terminal sessions absorb the
// event without counting, which guards against post-termination races. The
// third qualifying switch cancels the session and tells the caller to stop
// recording.
func (e *InterviewEngine) RecordTabSwitch(ctx context.Context, sessionID string) (*TabSwitchResult, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	if session.Status.IsTerminal() {
		return &TabSwitchResult{TabSwitches: session.TabSwitchCount, ShouldTerminate: false}, nil
	}

	counted, err := e.repo.IncrementTabSwitch(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session, err = e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	if !counted {
		// Raced with termination; report without counting.
		return &TabSwitchResult{TabSwitches: session.TabSwitchCount, ShouldTerminate: false}, nil
	}

	if err := e.repo.AppendTabSwitchTime(ctx, session, time.Now()); err != nil {
		slog.Warn("Failed to record tab switch timestamp", "error", err, "session_id", sessionID)
	}

	if session.TabSwitchCount < models.TabSwitchLimit || session.Status.IsTerminal() {
		return &TabSwitchResult{TabSwitches: session.TabSwitchCount, ShouldTerminate: false}, nil
	}

	now := time.Now()
	terminated, err := e.repo.TransitionSession(ctx, sessionID, session.Status, map[string]interface{}{
		"status":                      models.StatusCancelled,
		"terminated_for_tab_switches": true,
		"completed_at":                now,
	})
	if err != nil {
		return nil, err
	}
	if terminated {
		slog.Warn("Session terminated for tab switches", "session_id", sessionID, "tab_switches", session.TabSwitchCount)
	}

	return &TabSwitchResult{TabSwitches: session.TabSwitchCount, ShouldTerminate: terminated}, nil
}

// CompleteSession moves a session to Completed. Completing a cancelled or
// already-completed session is rejected by the transition table.
func (e *InterviewEngine) CompleteSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	if !session.Status.CanTransition(models.StatusCompleted) {
		return nil, NewPolicyViolation("cannot complete session", "session is %s", session.Status)
	}

	now := time.Now()
	updated, err := e.repo.TransitionSession(ctx, sessionID, session.Status, map[string]interface{}{
		"status":       models.StatusCompleted,
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	session.Status = models.StatusCompleted
	session.CompletedAt = &now
	slog.Info("Interview session completed", "session_id", sessionID)
	return session, nil
}

// CancelSession moves a session to Cancelled; used by the stale-session
// reaper and by explicit early termination.
func (e *InterviewEngine) CancelSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	if !session.Status.CanTransition(models.StatusCancelled) {
		return nil, NewPolicyViolation("cannot cancel session", "session is %s", session.Status)
	}

	now := time.Now()
	updated, err := e.repo.TransitionSession(ctx, sessionID, session.Status, map[string]interface{}{
		"status":       models.StatusCancelled,
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	session.Status = models.StatusCancelled
	session.CompletedAt = &now
	slog.Info("Interview session cancelled", "session_id", sessionID)
	return session, nil
}

// GetSession returns a session by id.
func (e *InterviewEngine) GetSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// ListSessions returns all sessions owned by a user, newest first.
func (e *InterviewEngine) ListSessions(ctx context.Context, userID string) ([]models.InterviewSession, error) {
	return e.repo.ListInterviewSessions(ctx, userID)
}

// DeleteSession removes a session and its recorded answers.
func (e *InterviewEngine) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotFound
	}
	if err := e.repo.DeleteInterviewSession(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("Interview session deleted", "session_id", sessionID)
	return nil
}

// GetResults aggregates the full report for a finished session.
func (e *InterviewEngine) GetResults(ctx context.Context, sessionID string) (*SessionReport, error) {
	session, err := e.repo.GetInterviewSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if !session.Status.IsTerminal() {
		return nil, NewPolicyViolation("results require a finished session", "session is %s", session.Status)
	}

	qas, err := e.repo.ListQuestionAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return BuildSessionReport(session, qas), nil
}
