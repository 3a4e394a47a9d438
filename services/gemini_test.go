package services

import (
	"testing"

	"github.com/akashpai/prepvox/backend/models"
)

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripJSONFences(tt.input); got != tt.expected {
				t.Errorf("stripJSONFences(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeDifficulty(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"easy", models.DifficultyEasy},
		{"Medium", models.DifficultyMedium},
		{" HARD ", models.DifficultyHard},
		{"extreme", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeDifficulty(tt.input); got != tt.expected {
			t.Errorf("normalizeDifficulty(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseEvaluationClampsAndNormalizes(t *testing.T) {
	response := `{
		"overall_score": 150,
		"technical_accuracy": -10,
		"communication_clarity": 70,
		"depth_of_knowledge": 60,
		"problem_solving": 65,
		"role_relevance": 80,
		"feedback": "Decent answer.",
		"confidence": "HIGH"
	}`

	evaluation := parseEvaluation(response)

	if evaluation.OverallScore != 100 {
		t.Errorf("OverallScore = %d, expected clamp to 100", evaluation.OverallScore)
	}
	if evaluation.TechnicalAccuracy != 0 {
		t.Errorf("TechnicalAccuracy = %d, expected clamp to 0", evaluation.TechnicalAccuracy)
	}
	if evaluation.Confidence != "high" {
		t.Errorf("Confidence = %q, expected high", evaluation.Confidence)
	}
}

func TestParseEvaluationInvalidJSONFallsBack(t *testing.T) {
	evaluation := parseEvaluation("the model rambled instead of returning JSON")

	if evaluation.OverallScore != 50 {
		t.Errorf("fallback OverallScore = %d, expected 50", evaluation.OverallScore)
	}
	if evaluation.Confidence != "low" {
		t.Errorf("fallback Confidence = %q, expected low", evaluation.Confidence)
	}
}

func TestParseEvaluationDefaultsConfidenceAndFeedback(t *testing.T) {
	evaluation := parseEvaluation(`{"overall_score": 70, "confidence": "certain"}`)

	if evaluation.Confidence != "medium" {
		t.Errorf("Confidence = %q, expected medium default", evaluation.Confidence)
	}
	if evaluation.Feedback != "No feedback provided" {
		t.Errorf("Feedback = %q, expected default", evaluation.Feedback)
	}
}
