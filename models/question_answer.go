package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question difficulty levels as produced by the question generator.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// QuestionAnswer is the persisted unit for one question within a session. The
// question fields are written when the question is generated; every answer
// field stays nil until ProcessAnswer writes the transcript and evaluation in
// a single update. Resubmission overwrites (last-write-wins).
type QuestionAnswer struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string `gorm:"type:uuid;not null;uniqueIndex:idx_session_question" json:"session_id"`
	// QuestionNumber is 1-based and matches the session index at generation time.
	QuestionNumber int      `gorm:"not null;uniqueIndex:idx_session_question" json:"question_number"`
	QuestionText   string   `gorm:"type:text;not null" json:"question_text"`
	Category       string   `gorm:"size:100;not null" json:"category"`
	Difficulty     string   `gorm:"size:20" json:"difficulty,omitempty"`
	TestedSkills   []string `gorm:"serializer:json;type:text" json:"tested_skills,omitempty"`

	// Answer fields, nil until an answer is submitted for this question.
	Transcript            *string  `gorm:"type:text" json:"transcript,omitempty"`
	OverallScore          *int     `json:"overall_score,omitempty"`
	TechnicalAccuracy     *int     `json:"technical_accuracy,omitempty"`
	CommunicationClarity  *int     `json:"communication_clarity,omitempty"`
	DepthOfKnowledge      *int     `json:"depth_of_knowledge,omitempty"`
	ProblemSolving        *int     `json:"problem_solving,omitempty"`
	RoleRelevance         *int     `json:"role_relevance,omitempty"`
	Feedback              *string  `gorm:"type:text" json:"feedback,omitempty"`
	Strengths             []string `gorm:"serializer:json;type:text" json:"strengths,omitempty"`
	Improvements          []string `gorm:"serializer:json;type:text" json:"improvements,omitempty"`
	KeyInsights           []string `gorm:"serializer:json;type:text" json:"key_insights,omitempty"`
	RedFlags              []string `gorm:"serializer:json;type:text" json:"red_flags,omitempty"`
	FollowUpQuestions     []string `gorm:"serializer:json;type:text" json:"follow_up_questions,omitempty"`
	WordCount             *int     `json:"word_count,omitempty"`
	AnswerDurationSeconds *float64 `json:"answer_duration_seconds,omitempty"`
	Confidence            *string  `gorm:"size:20" json:"confidence,omitempty"`

	AnsweredAt *time.Time     `json:"answered_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session InterviewSession `gorm:"foreignKey:SessionID" json:"-"`
}

func (q *QuestionAnswer) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	return nil
}

// Answered reports whether an answer has been processed for this question.
func (q *QuestionAnswer) Answered() bool {
	return q.Transcript != nil
}

// DetailedEvaluation is the multi-metric result produced by the answer
// evaluator for one transcript. All scores are 0-100 integers.
type DetailedEvaluation struct {
	OverallScore         int      `json:"overall_score"`
	TechnicalAccuracy    int      `json:"technical_accuracy"`
	CommunicationClarity int      `json:"communication_clarity"`
	DepthOfKnowledge     int      `json:"depth_of_knowledge"`
	ProblemSolving       int      `json:"problem_solving"`
	RoleRelevance        int      `json:"role_relevance"`
	Feedback             string   `json:"feedback"`
	Strengths            []string `json:"strengths"`
	Improvements         []string `json:"improvements"`
	KeyInsights          []string `json:"key_insights"`
	RedFlags             []string `json:"red_flags"`
	FollowUpQuestions    []string `json:"follow_up_questions"`
	Confidence           string   `json:"confidence"` // low, medium, high
}
