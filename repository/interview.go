package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/akashpai/prepvox/backend/models"
	"gorm.io/gorm"
)

// Interview session operations. Mutations that race with concurrent requests
// (index advancement, tab-switch counting, status transitions) are expressed
// as conditional single-statement updates so the store, not the process,
// decides the winner.

func (r *GORMRepository) CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create interview session", "error", err)
		return err
	}
	slog.Info("Interview session created", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

func (r *GORMRepository) GetInterviewSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	var session models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get interview session", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) GetInterviewSessionForUser(ctx context.Context, sessionID, userID string) (*models.InterviewSession, error) {
	var session models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get interview session", "error", err, "session_id", sessionID, "user_id", userID)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) ListInterviewSessions(ctx context.Context, userID string) ([]models.InterviewSession, error) {
	var sessions []models.InterviewSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to list interview sessions", "error", err, "user_id", userID)
		return nil, err
	}
	return sessions, nil
}

// TransitionSession applies the given field updates only while the session is
// still in the expected status. Returns false when another writer got there
// first (or the session does not exist).
func (r *GORMRepository) TransitionSession(ctx context.Context, sessionID string, from models.SessionStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ? AND status = ?", sessionID, from).
		Updates(updates)
	if result.Error != nil {
		slog.Error("Failed to transition interview session", "error", result.Error, "session_id", sessionID, "from", from)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AdvanceQuestionIndex moves current_question_index from `from` to `from+1`
// with a compare-and-swap, so two in-flight generations cannot both win.
func (r *GORMRepository) AdvanceQuestionIndex(ctx context.Context, sessionID string, from int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ? AND current_question_index = ?", sessionID, from).
		Update("current_question_index", from+1)
	if result.Error != nil {
		slog.Error("Failed to advance question index", "error", result.Error, "session_id", sessionID, "from", from)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementTabSwitch bumps the tab-switch counter only while the session is
// non-terminal. The conditional single-statement increment makes duplicate
// near-simultaneous calls safe: each one either lands or is a no-op.
func (r *GORMRepository) IncrementTabSwitch(ctx context.Context, sessionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ? AND status NOT IN ?", sessionID, []models.SessionStatus{models.StatusCompleted, models.StatusCancelled}).
		Update("tab_switch_count", gorm.Expr("tab_switch_count + 1"))
	if result.Error != nil {
		slog.Error("Failed to increment tab switch count", "error", result.Error, "session_id", sessionID)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AppendTabSwitchTime records the timestamp of a qualifying tab switch. This
// write is best-effort bookkeeping next to the atomic counter.
func (r *GORMRepository) AppendTabSwitchTime(ctx context.Context, session *models.InterviewSession, at time.Time) error {
	times := append(session.TabSwitchTimes, at)
	err := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", session.ID).
		Update("tab_switch_times", times).Error
	if err != nil {
		slog.Error("Failed to append tab switch time", "error", err, "session_id", session.ID)
		return err
	}
	session.TabSwitchTimes = times
	return nil
}

func (r *GORMRepository) DeleteInterviewSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.QuestionAnswer{}).Error; err != nil {
			slog.Error("Failed to delete question answers", "error", err, "session_id", sessionID)
			return err
		}
		if err := tx.Where("id = ?", sessionID).Delete(&models.InterviewSession{}).Error; err != nil {
			slog.Error("Failed to delete interview session", "error", err, "session_id", sessionID)
			return err
		}
		slog.Info("Interview session deleted", "session_id", sessionID)
		return nil
	})
}

// ListStaleInProgress returns in-progress sessions whose last update is older
// than the cutoff. Used by the reaper to cancel abandoned interviews.
func (r *GORMRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.InterviewSession, error) {
	var sessions []models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusInProgress, cutoff).
		Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to list stale sessions", "error", err)
		return nil, err
	}
	return sessions, nil
}

// Question answer operations

// CreateQuestionAnswer inserts a new QA record. A duplicate (session_id,
// question_number) pair surfaces as gorm.ErrDuplicatedKey via TranslateError.
func (r *GORMRepository) CreateQuestionAnswer(ctx context.Context, qa *models.QuestionAnswer) error {
	if err := r.db.WithContext(ctx).Create(qa).Error; err != nil {
		slog.Error("Failed to create question answer", "error", err, "session_id", qa.SessionID, "question_number", qa.QuestionNumber)
		return err
	}
	slog.Info("Question answer created", "qa_id", qa.ID, "session_id", qa.SessionID, "question_number", qa.QuestionNumber)
	return nil
}

func (r *GORMRepository) GetQuestionAnswer(ctx context.Context, sessionID string, questionNumber int) (*models.QuestionAnswer, error) {
	var qa models.QuestionAnswer
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND question_number = ?", sessionID, questionNumber).
		First(&qa).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get question answer", "error", err, "session_id", sessionID, "question_number", questionNumber)
		return nil, err
	}
	return &qa, nil
}

func (r *GORMRepository) ListQuestionAnswers(ctx context.Context, sessionID string) ([]models.QuestionAnswer, error) {
	var qas []models.QuestionAnswer
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("question_number").
		Find(&qas).Error
	if err != nil {
		slog.Error("Failed to list question answers", "error", err, "session_id", sessionID)
		return nil, err
	}
	return qas, nil
}

// UpdateQuestionAnswerEvaluation writes every answer field in one statement so
// a QA record is never observable half-answered.
func (r *GORMRepository) UpdateQuestionAnswerEvaluation(ctx context.Context, qaID string, updates map[string]interface{}) error {
	err := r.db.WithContext(ctx).
		Model(&models.QuestionAnswer{}).
		Where("id = ?", qaID).
		Updates(updates).Error
	if err != nil {
		slog.Error("Failed to update question answer evaluation", "error", err, "qa_id", qaID)
		return err
	}
	slog.Info("Question answer evaluated", "qa_id", qaID)
	return nil
}
