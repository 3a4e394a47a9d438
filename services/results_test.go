package services

import (
	"testing"
	"time"

	"github.com/akashpai/prepvox/backend/models"
)

func answeredQA(number int, difficulty string, score int, skills ...string) models.QuestionAnswer {
	transcript := "an answer"
	answeredAt := time.Now()
	return models.QuestionAnswer{
		QuestionNumber: number,
		QuestionText:   "question",
		Difficulty:     difficulty,
		TestedSkills:   skills,
		Transcript:     &transcript,
		OverallScore:   &score,
		AnsweredAt:     &answeredAt,
	}
}

func unansweredQA(number int, difficulty string, skills ...string) models.QuestionAnswer {
	return models.QuestionAnswer{
		QuestionNumber: number,
		QuestionText:   "question",
		Difficulty:     difficulty,
		TestedSkills:   skills,
	}
}

func TestBuildSessionReportAverageDividesByTotalQuestions(t *testing.T) {
	session := &models.InterviewSession{
		ID:             "s1",
		TotalQuestions: 5,
		Status:         models.StatusCompleted,
	}
	qas := []models.QuestionAnswer{
		answeredQA(1, models.DifficultyEasy, 90),
		answeredQA(2, models.DifficultyMedium, 70),
		answeredQA(3, models.DifficultyHard, 50),
	}

	report := BuildSessionReport(session, qas)

	if report.TotalAnswered != 3 {
		t.Errorf("TotalAnswered = %d, expected 3", report.TotalAnswered)
	}
	// (90+70+50)/5 = 42: the two unanswered questions drag the average down.
	if report.AverageScore != 42 {
		t.Errorf("AverageScore = %d, expected 42", report.AverageScore)
	}
	if report.Grade != "Needs Improvement" {
		t.Errorf("Grade = %q, expected %q", report.Grade, "Needs Improvement")
	}
}

func TestBuildSessionReportGradeBoundaries(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{85, "Excellent"},
		{84, "Good"},
		{70, "Good"},
		{69, "Satisfactory"},
		{50, "Satisfactory"},
		{49, "Needs Improvement"},
		{0, "Needs Improvement"},
	}

	for _, tt := range tests {
		session := &models.InterviewSession{TotalQuestions: 1, Status: models.StatusCompleted}
		qas := []models.QuestionAnswer{answeredQA(1, models.DifficultyMedium, tt.score)}

		report := BuildSessionReport(session, qas)
		if report.Grade != tt.expected {
			t.Errorf("Grade for score %d = %q, expected %q", tt.score, report.Grade, tt.expected)
		}
	}
}

func TestBuildSessionReportSkillAttribution(t *testing.T) {
	session := &models.InterviewSession{
		TotalQuestions: 1,
		Status:         models.StatusCompleted,
		Skills:         []string{"go", "sql", "kubernetes"},
	}
	// One question testing two skills: both receive the full score.
	qas := []models.QuestionAnswer{
		answeredQA(1, models.DifficultyMedium, 80, "go", "sql"),
	}

	report := BuildSessionReport(session, qas)

	if len(report.SkillPerformance) != 2 {
		t.Fatalf("SkillPerformance has %d entries, expected 2", len(report.SkillPerformance))
	}
	for _, skill := range report.SkillPerformance {
		if skill.AverageScore != 80 {
			t.Errorf("skill %q average = %d, expected 80", skill.Skill, skill.AverageScore)
		}
		if skill.Rating != "good" {
			t.Errorf("skill %q rating = %q, expected %q", skill.Skill, skill.Rating, "good")
		}
	}

	if len(report.UntestedSkills) != 1 || report.UntestedSkills[0] != "kubernetes" {
		t.Errorf("UntestedSkills = %v, expected [kubernetes]", report.UntestedSkills)
	}
}

func TestBuildSessionReportUnansweredQuestionsStillCountAsTested(t *testing.T) {
	session := &models.InterviewSession{
		TotalQuestions: 2,
		Status:         models.StatusCancelled,
		Skills:         []string{"go", "sql"},
	}
	qas := []models.QuestionAnswer{
		answeredQA(1, models.DifficultyEasy, 60, "go"),
		unansweredQA(2, models.DifficultyMedium, "sql"),
	}

	report := BuildSessionReport(session, qas)

	// The asked-but-unanswered question still marks its skills as tested.
	if len(report.UntestedSkills) != 0 {
		t.Errorf("UntestedSkills = %v, expected none", report.UntestedSkills)
	}
	if report.TotalAnswered != 1 {
		t.Errorf("TotalAnswered = %d, expected 1", report.TotalAnswered)
	}
	// Unanswered questions contribute no difficulty group.
	if len(report.DifficultyBreakdown) != 1 {
		t.Fatalf("DifficultyBreakdown has %d entries, expected 1", len(report.DifficultyBreakdown))
	}
	if report.DifficultyBreakdown[0].Difficulty != models.DifficultyEasy {
		t.Errorf("DifficultyBreakdown[0] = %q, expected easy", report.DifficultyBreakdown[0].Difficulty)
	}
}

func TestBuildSessionReportDifficultyOrdering(t *testing.T) {
	session := &models.InterviewSession{TotalQuestions: 3, Status: models.StatusCompleted}
	qas := []models.QuestionAnswer{
		answeredQA(1, models.DifficultyHard, 40),
		answeredQA(2, models.DifficultyEasy, 90),
		answeredQA(3, models.DifficultyMedium, 70),
	}

	report := BuildSessionReport(session, qas)

	expected := []string{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard}
	if len(report.DifficultyBreakdown) != len(expected) {
		t.Fatalf("DifficultyBreakdown has %d entries, expected %d", len(report.DifficultyBreakdown), len(expected))
	}
	for i, want := range expected {
		if report.DifficultyBreakdown[i].Difficulty != want {
			t.Errorf("DifficultyBreakdown[%d] = %q, expected %q", i, report.DifficultyBreakdown[i].Difficulty, want)
		}
	}
}

func TestBuildSessionReportSkillOrdering(t *testing.T) {
	session := &models.InterviewSession{TotalQuestions: 2, Status: models.StatusCompleted}
	qas := []models.QuestionAnswer{
		answeredQA(1, models.DifficultyMedium, 60, "sql"),
		answeredQA(2, models.DifficultyMedium, 90, "go"),
	}

	report := BuildSessionReport(session, qas)

	if len(report.SkillPerformance) != 2 {
		t.Fatalf("SkillPerformance has %d entries, expected 2", len(report.SkillPerformance))
	}
	if report.SkillPerformance[0].Skill != "go" {
		t.Errorf("highest-scoring skill first, got %q", report.SkillPerformance[0].Skill)
	}
}

func TestBuildSessionReportEmptySession(t *testing.T) {
	session := &models.InterviewSession{TotalQuestions: 5, Status: models.StatusCancelled}

	report := BuildSessionReport(session, nil)

	if report.AverageScore != 0 {
		t.Errorf("AverageScore = %d, expected 0", report.AverageScore)
	}
	if report.TotalAnswered != 0 {
		t.Errorf("TotalAnswered = %d, expected 0", report.TotalAnswered)
	}
	if report.Grade != "Needs Improvement" {
		t.Errorf("Grade = %q, expected %q", report.Grade, "Needs Improvement")
	}
}
