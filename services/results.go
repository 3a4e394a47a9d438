package services

import (
	"math"
	"sort"

	"github.com/akashpai/prepvox/backend/models"
)

// SessionReport is the read-only aggregation of a finished session.
type SessionReport struct {
	SessionID                string                 `json:"session_id"`
	Role                     string                 `json:"role"`
	InterviewType            string                 `json:"interview_type"`
	Status                   models.SessionStatus   `json:"status"`
	TotalQuestions           int                    `json:"total_questions"`
	TotalAnswered            int                    `json:"total_answered"`
	AverageScore             int                    `json:"average_score"`
	Grade                    string                 `json:"grade"`
	TabSwitchCount           int                    `json:"tab_switch_count"`
	TerminatedForTabSwitches bool                   `json:"terminated_for_tab_switches"`
	DifficultyBreakdown      []DifficultyStats      `json:"difficulty_breakdown"`
	SkillPerformance         []SkillStats           `json:"skill_performance"`
	UntestedSkills           []string               `json:"untested_skills"`
	Questions                []models.QuestionAnswer `json:"questions"`
}

// DifficultyStats is the per-difficulty average over answered questions.
type DifficultyStats struct {
	Difficulty   string `json:"difficulty"`
	Count        int    `json:"count"`
	AverageScore int    `json:"average_score"`
}

// SkillStats is the per-skill average over answered questions that tested it.
type SkillStats struct {
	Skill        string `json:"skill"`
	Count        int    `json:"count"`
	AverageScore int    `json:"average_score"`
	Rating       string `json:"rating"`
}

// Grade boundaries for the overall session grade.
func gradeFor(score int) string {
	switch {
	case score >= 85:
		return "Excellent"
	case score >= 70:
		return "Good"
	case score >= 50:
		return "Satisfactory"
	default:
		return "Needs Improvement"
	}
}

// Skill ratings use a slightly lower satisfactory bar than the session grade.
func skillRatingFor(score int) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 55:
		return "satisfactory"
	default:
		return "needs-improvement"
	}
}

// BuildSessionReport computes the full aggregation for a finished session.
// The average divides by the declared question budget, not the answered
// count, so unanswered questions pull the score down.
func BuildSessionReport(session *models.InterviewSession, qas []models.QuestionAnswer) *SessionReport {
	totalAnswered := 0
	scoreSum := 0

	type group struct {
		count int
		sum   int
	}
	byDifficulty := make(map[string]*group)
	bySkill := make(map[string]*group)
	tested := make(map[string]bool)

	for i := range qas {
		qa := &qas[i]
		for _, skill := range qa.TestedSkills {
			tested[skill] = true
		}
		if !qa.Answered() {
			continue
		}
		totalAnswered++

		score := 0
		if qa.OverallScore != nil {
			score = *qa.OverallScore
		}
		scoreSum += score

		difficulty := qa.Difficulty
		if difficulty == "" {
			difficulty = "unset"
		}
		g := byDifficulty[difficulty]
		if g == nil {
			g = &group{}
			byDifficulty[difficulty] = g
		}
		g.count++
		g.sum += score

		// Each tested skill gets the full question score independently.
		for _, skill := range qa.TestedSkills {
			s := bySkill[skill]
			if s == nil {
				s = &group{}
				bySkill[skill] = s
			}
			s.count++
			s.sum += score
		}
	}

	averageScore := 0
	if session.TotalQuestions > 0 {
		averageScore = int(math.Round(float64(scoreSum) / float64(session.TotalQuestions)))
	}

	difficulties := make([]DifficultyStats, 0, len(byDifficulty))
	for difficulty, g := range byDifficulty {
		difficulties = append(difficulties, DifficultyStats{
			Difficulty:   difficulty,
			Count:        g.count,
			AverageScore: int(math.Round(float64(g.sum) / float64(g.count))),
		})
	}
	sort.Slice(difficulties, func(i, j int) bool {
		return difficultyOrder(difficulties[i].Difficulty) < difficultyOrder(difficulties[j].Difficulty)
	})

	skills := make([]SkillStats, 0, len(bySkill))
	for skill, g := range bySkill {
		avg := int(math.Round(float64(g.sum) / float64(g.count)))
		skills = append(skills, SkillStats{
			Skill:        skill,
			Count:        g.count,
			AverageScore: avg,
			Rating:       skillRatingFor(avg),
		})
	}
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].AverageScore != skills[j].AverageScore {
			return skills[i].AverageScore > skills[j].AverageScore
		}
		return skills[i].Skill < skills[j].Skill
	})

	untested := make([]string, 0)
	for _, skill := range session.Skills {
		if !tested[skill] {
			untested = append(untested, skill)
		}
	}

	return &SessionReport{
		SessionID:                session.ID,
		Role:                     session.Role,
		InterviewType:            session.InterviewType,
		Status:                   session.Status,
		TotalQuestions:           session.TotalQuestions,
		TotalAnswered:            totalAnswered,
		AverageScore:             averageScore,
		Grade:                    gradeFor(averageScore),
		TabSwitchCount:           session.TabSwitchCount,
		TerminatedForTabSwitches: session.TerminatedForTabSwitches,
		DifficultyBreakdown:      difficulties,
		SkillPerformance:         skills,
		UntestedSkills:           untested,
		Questions:                qas,
	}
}

func difficultyOrder(d string) int {
	switch d {
	case models.DifficultyEasy:
		return 0
	case models.DifficultyMedium:
		return 1
	case models.DifficultyHard:
		return 2
	default:
		return 3
	}
}
