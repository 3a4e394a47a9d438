package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/akashpai/prepvox/backend/models"
)

// Capability interfaces over the AI providers. The engine only sees these, so
// tests and alternative providers plug in without touching session logic.

type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, role, interviewType string, experienceYears, questionNumber int, category string, skills []string) (*GeneratedQuestion, error)
}

type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, question, transcript, role string, experienceYears, questionNumber int) (*models.DetailedEvaluation, error)
}

type HintGenerator interface {
	GenerateHint(ctx context.Context, question, role, interviewType string) (*Hint, error)
}

type Transcriber interface {
	TranscribeAudio(ctx context.Context, audioData []byte) (string, error)
	TranscribeChunk(ctx context.Context, audioData []byte, previousContext string) (string, error)
}

type SpeechSynthesizer interface {
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
	VoiceID() string
}

// EvaluationGateway is the single entry point to the five AI capabilities.
// It owns the retry and fallback policy: generation and evaluation degrade to
// deterministic templated values so a transient provider failure never aborts
// a session, while transcription and speech synthesis propagate transient
// errors because there is no safe fallback for them.
type EvaluationGateway struct {
	questions   QuestionGenerator
	evaluator   AnswerEvaluator
	hints       HintGenerator
	transcriber Transcriber
	tts         SpeechSynthesizer
	audioCache  *AudioCache
}

func NewEvaluationGateway(gemini *GeminiService, tts *ElevenLabsService, audioCache *AudioCache) *EvaluationGateway {
	return &EvaluationGateway{
		questions:   gemini,
		evaluator:   gemini,
		hints:       gemini,
		transcriber: gemini,
		tts:         tts,
		audioCache:  audioCache,
	}
}

// NewEvaluationGatewayWith wires explicit capability implementations.
func NewEvaluationGatewayWith(questions QuestionGenerator, evaluator AnswerEvaluator, hints HintGenerator, transcriber Transcriber, tts SpeechSynthesizer, audioCache *AudioCache) *EvaluationGateway {
	return &EvaluationGateway{
		questions:   questions,
		evaluator:   evaluator,
		hints:       hints,
		transcriber: transcriber,
		tts:         tts,
		audioCache:  audioCache,
	}
}

// GenerateQuestion retries once, then falls back to a templated question so
// the session can always proceed.
func (gw *EvaluationGateway) GenerateQuestion(ctx context.Context, role, interviewType string, experienceYears, questionNumber int, category string, skills []string) *GeneratedQuestion {
	for attempt := 0; attempt < 2; attempt++ {
		question, err := gw.questions.GenerateQuestion(ctx, role, interviewType, experienceYears, questionNumber, category, skills)
		if err == nil {
			return question
		}
		slog.Warn("Question generation failed", "error", err, "attempt", attempt+1, "question_number", questionNumber)
		if ctx.Err() != nil {
			break
		}
	}

	slog.Error("Question generation exhausted retries, using fallback", "role", role, "category", category)
	return fallbackQuestion(role, category, skills)
}

// EvaluateAnswer retries once, then falls back to a neutral templated
// evaluation rather than leaving the QA record unanswered.
func (gw *EvaluationGateway) EvaluateAnswer(ctx context.Context, question, transcript, role string, experienceYears, questionNumber int) *models.DetailedEvaluation {
	for attempt := 0; attempt < 2; attempt++ {
		evaluation, err := gw.evaluator.EvaluateAnswer(ctx, question, transcript, role, experienceYears, questionNumber)
		if err == nil {
			return evaluation
		}
		slog.Warn("Answer evaluation failed", "error", err, "attempt", attempt+1, "question_number", questionNumber)
		if ctx.Err() != nil {
			break
		}
	}

	slog.Error("Answer evaluation exhausted retries, using fallback", "question_number", questionNumber)
	return fallbackEvaluation(transcript)
}

// GenerateHint retries once, then falls back to a generic nudge.
func (gw *EvaluationGateway) GenerateHint(ctx context.Context, question, role, interviewType string) *Hint {
	for attempt := 0; attempt < 2; attempt++ {
		hint, err := gw.hints.GenerateHint(ctx, question, role, interviewType)
		if err == nil {
			return hint
		}
		slog.Warn("Hint generation failed", "error", err, "attempt", attempt+1)
		if ctx.Err() != nil {
			break
		}
	}

	return &Hint{
		Hint: "Break the problem into smaller parts: state your assumptions, walk through your approach step by step, and mention trade-offs you considered.",
		Examples: []string{
			"Start from a concrete project where you faced something similar.",
			"Explain what you would measure or test to validate your approach.",
		},
	}
}

// TranscribeAudio has no safe fallback; failures propagate as UpstreamError.
func (gw *EvaluationGateway) TranscribeAudio(ctx context.Context, audioData []byte) (string, error) {
	transcript, err := gw.transcriber.TranscribeAudio(ctx, audioData)
	if err != nil {
		return "", &UpstreamError{Capability: "transcription", Err: err}
	}
	return transcript, nil
}

// TranscribeChunk is best-effort by contract; the caller decides whether to
// swallow the error.
func (gw *EvaluationGateway) TranscribeChunk(ctx context.Context, audioData []byte, previousContext string) (string, error) {
	text, err := gw.transcriber.TranscribeChunk(ctx, audioData, previousContext)
	if err != nil {
		return "", &UpstreamError{Capability: "chunk transcription", Err: err}
	}
	return text, nil
}

// SynthesizeSpeech converts question text to audio, served from the cache
// when possible. Failures propagate as UpstreamError.
func (gw *EvaluationGateway) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	generate := func() ([]byte, error) {
		return gw.tts.TextToSpeech(ctx, text)
	}

	var audio []byte
	var err error
	if gw.audioCache != nil {
		audio, err = gw.audioCache.GetOrGenerate(ctx, text, gw.tts.VoiceID(), generate)
	} else {
		audio, err = generate()
	}
	if err != nil {
		return nil, &UpstreamError{Capability: "speech synthesis", Err: err}
	}
	return audio, nil
}

// fallbackQuestion is the deterministic templated question used when the
// generator is unavailable.
func fallbackQuestion(role, category string, skills []string) *GeneratedQuestion {
	var tested []string
	if len(skills) > 0 {
		tested = skills[:1]
	}

	text := fmt.Sprintf("Tell me about a challenging %s problem you solved as a %s. Walk me through the situation, your approach, and the outcome.",
		strings.ReplaceAll(category, "_", " "), role)

	return &GeneratedQuestion{
		Text:         text,
		Difficulty:   models.DifficultyMedium,
		TestedSkills: tested,
	}
}

// fallbackEvaluation is the deterministic templated evaluation used when the
// evaluator is unavailable.
func fallbackEvaluation(transcript string) *models.DetailedEvaluation {
	feedback := "Your answer was recorded, but automatic scoring was unavailable for this question. The neutral scores below do not reflect answer quality."
	if strings.TrimSpace(transcript) == "" {
		feedback = "No intelligible answer was captured for this question."
	}

	return &models.DetailedEvaluation{
		OverallScore:         50,
		TechnicalAccuracy:    50,
		CommunicationClarity: 50,
		DepthOfKnowledge:     50,
		ProblemSolving:       50,
		RoleRelevance:        50,
		Feedback:             feedback,
		Confidence:           "low",
	}
}
