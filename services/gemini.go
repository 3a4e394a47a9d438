package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/akashpai/prepvox/backend/models"

	"google.golang.org/genai"
)

const (
	ModelName = "gemini-2.5-flash"

	questionTimeout      = 20 * time.Second
	evaluationTimeout    = 30 * time.Second
	transcriptionTimeout = 15 * time.Second
	hintTimeout          = 15 * time.Second
)

// GeminiService handles all Gemini AI operations: question generation, answer
// evaluation, hint generation and audio transcription.
type GeminiService struct {
	genaiClient *genai.Client
}

// GeneratedQuestion is the structured output of the question generator.
type GeneratedQuestion struct {
	Text         string   `json:"question"`
	Difficulty   string   `json:"difficulty"`
	TestedSkills []string `json:"tested_skills"`
}

// Hint is the structured output of the hint generator.
type Hint struct {
	Hint     string   `json:"hint"`
	Examples []string `json:"examples"`
}

func NewGeminiService(apiKey string) *GeminiService {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		slog.Error("Failed to create genai client", "error", err)
		return nil
	}

	return &GeminiService{genaiClient: genaiClient}
}

// GenerateQuestion produces one interview question for the given position,
// category and declared skill set.
func (g *GeminiService) GenerateQuestion(ctx context.Context, role, interviewType string, experienceYears, questionNumber int, category string, skills []string) (*GeneratedQuestion, error) {
	if g.genaiClient == nil {
		return nil, fmt.Errorf("genai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, questionTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are an expert %s interviewer preparing question %d for a %s candidate with %d years of experience.

Question category: %s
Candidate's declared skills: %s

Generate one spoken-style interview question for this category. Pick a difficulty that fits the candidate's experience and name which of the declared skills the question tests (only skills from the list above).

Respond with JSON only, no markdown fences:
{"question": "...", "difficulty": "easy|medium|hard", "tested_skills": ["..."]}`,
		interviewType, questionNumber, role, experienceYears, category, strings.Join(skills, ", "))

	result, err := g.genaiClient.Models.GenerateContent(ctx, ModelName, genai.Text(prompt), jsonResponseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to generate question: %w", err)
	}

	var question GeneratedQuestion
	if err := json.Unmarshal([]byte(stripJSONFences(result.Text())), &question); err != nil {
		slog.Error("Failed to parse generated question", "error", err, "response", result.Text())
		return nil, fmt.Errorf("failed to parse question response: %w", err)
	}
	if strings.TrimSpace(question.Text) == "" {
		return nil, fmt.Errorf("question generator returned empty text")
	}
	question.Difficulty = normalizeDifficulty(question.Difficulty)

	slog.Info("Generated interview question",
		"role", role,
		"category", category,
		"difficulty", question.Difficulty,
		"question_number", questionNumber)
	return &question, nil
}

// EvaluateAnswer scores a transcript against the question it answered.
func (g *GeminiService) EvaluateAnswer(ctx context.Context, question, transcript, role string, experienceYears, questionNumber int) (*models.DetailedEvaluation, error) {
	if g.genaiClient == nil {
		return nil, fmt.Errorf("genai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are an expert interviewer evaluating answer %d from a %s candidate with %d years of experience.

Question: %s

Candidate's answer (raw transcript of spoken audio, so ignore filler words and transcription noise):
%s

Score each metric 0-100 and give qualitative feedback. Respond with JSON only, no markdown fences:
{
  "overall_score": 0,
  "technical_accuracy": 0,
  "communication_clarity": 0,
  "depth_of_knowledge": 0,
  "problem_solving": 0,
  "role_relevance": 0,
  "feedback": "...",
  "strengths": ["..."],
  "improvements": ["..."],
  "key_insights": ["..."],
  "red_flags": ["..."],
  "follow_up_questions": ["..."],
  "confidence": "low|medium|high"
}`, questionNumber, role, experienceYears, question, transcript)

	result, err := g.genaiClient.Models.GenerateContent(ctx, ModelName, genai.Text(prompt), jsonResponseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate answer: %w", err)
	}

	evaluation := parseEvaluation(result.Text())
	slog.Info("Evaluated answer",
		"question_number", questionNumber,
		"overall_score", evaluation.OverallScore,
		"confidence", evaluation.Confidence)
	return evaluation, nil
}

// GenerateHint produces a nudge for a hard question without answering it.
func (g *GeminiService) GenerateHint(ctx context.Context, question, role, interviewType string) (*Hint, error) {
	if g.genaiClient == nil {
		return nil, fmt.Errorf("genai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, hintTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`A %s candidate in a %s interview is stuck on this question:

%s

Give a short hint that points them in the right direction without revealing the answer, plus up to three concrete examples or angles they could mention.

Respond with JSON only, no markdown fences:
{"hint": "...", "examples": ["..."]}`, role, interviewType, question)

	result, err := g.genaiClient.Models.GenerateContent(ctx, ModelName, genai.Text(prompt), jsonResponseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to generate hint: %w", err)
	}

	var hint Hint
	if err := json.Unmarshal([]byte(stripJSONFences(result.Text())), &hint); err != nil {
		slog.Error("Failed to parse hint response", "error", err, "response", result.Text())
		return nil, fmt.Errorf("failed to parse hint response: %w", err)
	}
	return &hint, nil
}

// TranscribeAudio transcribes a complete recorded answer.
func (g *GeminiService) TranscribeAudio(ctx context.Context, audioData []byte) (string, error) {
	return g.transcribe(ctx, audioData,
		"Transcribe this audio to text. Provide only the transcript, no additional commentary.")
}

// TranscribeChunk transcribes an incremental audio chunk, using the trailing
// words of the transcript so far as context for continuity.
func (g *GeminiService) TranscribeChunk(ctx context.Context, audioData []byte, previousContext string) (string, error) {
	prompt := "Transcribe this audio to text. Provide only the transcript, no additional commentary."
	if previousContext != "" {
		prompt = fmt.Sprintf("This audio continues a spoken answer. The transcript so far ends with: %q. Transcribe only the new audio; do not repeat the earlier words. Provide only the transcript.", previousContext)
	}
	return g.transcribe(ctx, audioData, prompt)
}

func (g *GeminiService) transcribe(ctx context.Context, audioData []byte, prompt string) (string, error) {
	slog.Info("Transcribing audio with Gemini", "size", len(audioData))

	ctx, cancel := context.WithTimeout(ctx, transcriptionTimeout)
	defer cancel()

	if g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		{
			InlineData: &genai.Blob{
				MIMEType: "audio/webm",
				Data:     audioData,
			},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.genaiClient.Models.GenerateContent(ctx, ModelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate transcript: %w", err)
	}

	transcript := strings.TrimSpace(result.Text())
	slog.Info("Audio transcribed successfully", "transcript_length", len(transcript))
	return transcript, nil
}

// Helper functions

func jsonResponseConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
}

// stripJSONFences removes markdown code fences the model sometimes wraps
// around JSON despite instructions.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func normalizeDifficulty(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case models.DifficultyEasy:
		return models.DifficultyEasy
	case models.DifficultyMedium:
		return models.DifficultyMedium
	case models.DifficultyHard:
		return models.DifficultyHard
	default:
		return ""
	}
}

// parseEvaluation parses the structured evaluation, falling back to a neutral
// result when the model response is not valid JSON.
func parseEvaluation(response string) *models.DetailedEvaluation {
	var evaluation models.DetailedEvaluation
	if err := json.Unmarshal([]byte(stripJSONFences(response)), &evaluation); err != nil {
		slog.Error("Failed to parse evaluation JSON", "error", err, "response", response)
		return &models.DetailedEvaluation{
			OverallScore:         50,
			TechnicalAccuracy:    50,
			CommunicationClarity: 50,
			DepthOfKnowledge:     50,
			ProblemSolving:       50,
			RoleRelevance:        50,
			Feedback:             "The answer was recorded but could not be scored in detail. Please review the transcript.",
			Confidence:           "low",
		}
	}

	evaluation.OverallScore = clampScore(evaluation.OverallScore)
	evaluation.TechnicalAccuracy = clampScore(evaluation.TechnicalAccuracy)
	evaluation.CommunicationClarity = clampScore(evaluation.CommunicationClarity)
	evaluation.DepthOfKnowledge = clampScore(evaluation.DepthOfKnowledge)
	evaluation.ProblemSolving = clampScore(evaluation.ProblemSolving)
	evaluation.RoleRelevance = clampScore(evaluation.RoleRelevance)

	switch strings.ToLower(evaluation.Confidence) {
	case "low", "medium", "high":
		evaluation.Confidence = strings.ToLower(evaluation.Confidence)
	default:
		evaluation.Confidence = "medium"
	}

	if evaluation.Feedback == "" {
		evaluation.Feedback = "No feedback provided"
	}

	return &evaluation
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
