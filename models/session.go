package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of an interview session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

// sessionTransitions is the full transition table. Completed and Cancelled are
// terminal: they have no outgoing edges, so status changes are monotonic.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether the table allows moving from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session has reached a final state.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const (
	// MinQuestions and MaxQuestions bound the per-session question budget.
	// Out-of-range requests are clamped, not rejected.
	MinQuestions = 1
	MaxQuestions = 20

	// TabSwitchLimit is the number of detected tab switches that forces
	// termination of the session.
	TabSwitchLimit = 3
)

// InterviewSession represents one interview attempt by one user with a fixed
// question budget.
type InterviewSession struct {
	ID              string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string        `gorm:"type:uuid;not null;index" json:"user_id"`
	Role            string        `gorm:"size:255;not null" json:"role"`
	InterviewType   string        `gorm:"size:100;not null" json:"interview_type"`
	ExperienceYears int           `gorm:"default:0" json:"experience_years"`
	Skills          []string      `gorm:"serializer:json;type:text" json:"skills"`
	TotalQuestions  int           `gorm:"not null" json:"total_questions"`
	// CurrentQuestionIndex is 0-based and never exceeds TotalQuestions.
	CurrentQuestionIndex int           `gorm:"not null;default:0" json:"current_question_index"`
	Status               SessionStatus `gorm:"size:20;not null;default:'pending';check:status IN ('pending', 'in_progress', 'completed', 'cancelled')" json:"status"`

	TabSwitchCount           int         `gorm:"not null;default:0" json:"tab_switch_count"`
	TabSwitchTimes           []time.Time `gorm:"serializer:json;type:text" json:"tab_switch_times,omitempty"`
	TerminatedForTabSwitches bool        `gorm:"not null;default:false" json:"terminated_for_tab_switches"`

	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User      User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Questions []QuestionAnswer `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

func (s *InterviewSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// ClampTotalQuestions forces a requested question count into the allowed
// range, falling back to def when the request is zero.
func ClampTotalQuestions(requested, def int) int {
	if requested == 0 {
		requested = def
	}
	if requested < MinQuestions {
		return MinQuestions
	}
	if requested > MaxQuestions {
		return MaxQuestions
	}
	return requested
}
