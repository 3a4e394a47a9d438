package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/akashpai/prepvox/backend/models"
	"github.com/akashpai/prepvox/backend/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubAI implements every gateway capability with deterministic output, so
// engine tests run without network access.
type stubAI struct {
	difficulty    string
	transcript    string
	questionCalls int
	ttsCalls      int
	ttsErr        error
	transcribeErr error
}

func (s *stubAI) GenerateQuestion(ctx context.Context, role, interviewType string, experienceYears, questionNumber int, category string, skills []string) (*GeneratedQuestion, error) {
	s.questionCalls++
	difficulty := s.difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	return &GeneratedQuestion{
		Text:         fmt.Sprintf("Question %d about %s for a %s", questionNumber, category, role),
		Difficulty:   difficulty,
		TestedSkills: skills,
	}, nil
}

func (s *stubAI) EvaluateAnswer(ctx context.Context, question, transcript, role string, experienceYears, questionNumber int) (*models.DetailedEvaluation, error) {
	return &models.DetailedEvaluation{
		OverallScore:         80,
		TechnicalAccuracy:    78,
		CommunicationClarity: 82,
		DepthOfKnowledge:     75,
		ProblemSolving:       80,
		RoleRelevance:        85,
		Feedback:             "Solid answer with room to go deeper.",
		Strengths:            []string{"clear structure"},
		Improvements:         []string{"more concrete examples"},
		Confidence:           "high",
	}, nil
}

func (s *stubAI) GenerateHint(ctx context.Context, question, role, interviewType string) (*Hint, error) {
	return &Hint{Hint: "Think about trade-offs.", Examples: []string{"latency vs consistency"}}, nil
}

func (s *stubAI) TranscribeAudio(ctx context.Context, audioData []byte) (string, error) {
	if s.transcribeErr != nil {
		return "", s.transcribeErr
	}
	if s.transcript != "" {
		return s.transcript, nil
	}
	return "this is my recorded answer with several words", nil
}

func (s *stubAI) TranscribeChunk(ctx context.Context, audioData []byte, previousContext string) (string, error) {
	if s.transcribeErr != nil {
		return "", s.transcribeErr
	}
	return "partial words", nil
}

func (s *stubAI) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	s.ttsCalls++
	if s.ttsErr != nil {
		return nil, s.ttsErr
	}
	return []byte("mp3-bytes"), nil
}

func (s *stubAI) VoiceID() string {
	return "test-voice"
}

func newTestRepo(t *testing.T) *repository.GORMRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	repo := repository.NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return repo
}

func newTestEngine(t *testing.T, stub *stubAI) (*InterviewEngine, *repository.GORMRepository) {
	t.Helper()
	repo := newTestRepo(t)
	gateway := NewEvaluationGatewayWith(stub, stub, stub, stub, stub, nil)
	return NewInterviewEngine(repo, gateway, 5), repo
}

func createStartedSession(t *testing.T, engine *InterviewEngine, totalQuestions int) *models.InterviewSession {
	t.Helper()
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, "user-1", "Backend Engineer", "technical", 4, []string{"go", "sql"}, totalQuestions)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := engine.StartSession(ctx, session.ID); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return session
}

func TestCreateSessionClampsQuestionBudget(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	tests := []struct {
		requested int
		expected  int
	}{
		{0, 5},   // default
		{3, 3},   // in range
		{50, 20}, // clamped to max
		{-2, 1},  // clamped to min
	}

	for _, tt := range tests {
		session, err := engine.CreateSession(ctx, "user-1", "Engineer", "technical", 2, nil, tt.requested)
		if err != nil {
			t.Fatalf("CreateSession(%d) failed: %v", tt.requested, err)
		}
		if session.TotalQuestions != tt.expected {
			t.Errorf("TotalQuestions for requested %d = %d, expected %d", tt.requested, session.TotalQuestions, tt.expected)
		}
		if session.Status != models.StatusPending {
			t.Errorf("new session status = %s, expected pending", session.Status)
		}
	}
}

func TestStartSessionRejectsRestart(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	_, err := engine.StartSession(ctx, session.ID)
	if !IsPolicyViolation(err) {
		t.Errorf("second StartSession error = %v, expected policy violation", err)
	}
}

func TestGenerateNextQuestionRotatesCategoriesAndBounds(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 2)

	q1, err := engine.GenerateNextQuestion(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("first GenerateNextQuestion failed: %v", err)
	}
	if q1.Number != 1 || q1.Category != "core_concepts" {
		t.Errorf("q1 = number %d category %q, expected 1 core_concepts", q1.Number, q1.Category)
	}
	if len(q1.Audio) == 0 {
		t.Error("q1 has no audio")
	}

	q2, err := engine.GenerateNextQuestion(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("second GenerateNextQuestion failed: %v", err)
	}
	if q2.Number != 2 || q2.Category != "practical_experience" {
		t.Errorf("q2 = number %d category %q, expected 2 practical_experience", q2.Number, q2.Category)
	}

	_, err = engine.GenerateNextQuestion(ctx, session.ID, 0)
	if !errors.Is(err, ErrSessionComplete) {
		t.Errorf("past-budget error = %v, expected ErrSessionComplete", err)
	}
}

func TestGenerateNextQuestionRequiresInProgress(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, "user-1", "Engineer", "technical", 2, nil, 3)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); !IsPolicyViolation(err) {
		t.Errorf("pending session error = %v, expected policy violation", err)
	}

	if _, err := engine.CancelSession(ctx, session.ID); err != nil {
		t.Fatalf("CancelSession failed: %v", err)
	}
	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("cancelled session error = %v, expected ErrSessionComplete", err)
	}
}

func TestGenerateNextQuestionRetryAfterSpeechFailure(t *testing.T) {
	stub := &stubAI{ttsErr: errors.New("voice service down")}
	engine, repo := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	_, err := engine.GenerateNextQuestion(ctx, session.ID, 0)
	if !IsUpstream(err) {
		t.Fatalf("speech failure error = %v, expected upstream error", err)
	}

	// The question record survived but the index did not advance.
	reloaded, err := repo.GetInterviewSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetInterviewSession failed: %v", err)
	}
	if reloaded.CurrentQuestionIndex != 0 {
		t.Errorf("index after failed synthesis = %d, expected 0", reloaded.CurrentQuestionIndex)
	}

	stub.ttsErr = nil
	next, err := engine.GenerateNextQuestion(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if next.Number != 1 {
		t.Errorf("retry question number = %d, expected 1", next.Number)
	}
	// The retry must reuse the persisted question instead of regenerating.
	if stub.questionCalls != 1 {
		t.Errorf("generator called %d times, expected 1", stub.questionCalls)
	}
}

func TestGetQuestionHintDifficultyGate(t *testing.T) {
	stub := &stubAI{difficulty: models.DifficultyMedium}
	engine, _ := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); err != nil {
		t.Fatalf("GenerateNextQuestion failed: %v", err)
	}

	_, err := engine.GetQuestionHint(ctx, session.ID, 1)
	if !IsPolicyViolation(err) {
		t.Fatalf("hint for medium question error = %v, expected policy violation", err)
	}
	if !strings.Contains(err.Error(), "medium") {
		t.Errorf("violation should name the actual difficulty, got %q", err.Error())
	}
}

func TestGetQuestionHintForHardQuestion(t *testing.T) {
	stub := &stubAI{difficulty: models.DifficultyHard}
	engine, _ := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); err != nil {
		t.Fatalf("GenerateNextQuestion failed: %v", err)
	}

	hint, err := engine.GetQuestionHint(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("GetQuestionHint failed: %v", err)
	}
	if hint.Hint == "" {
		t.Error("hint text is empty")
	}
}

func TestGetQuestionHintUnknownQuestion(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	if _, err := engine.GetQuestionHint(ctx, session.ID, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("hint for unknown question error = %v, expected ErrNotFound", err)
	}
}

func TestProcessAnswerPersistsEvaluation(t *testing.T) {
	stub := &stubAI{transcript: "I would shard the database by tenant and add a cache"}
	engine, repo := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); err != nil {
		t.Fatalf("GenerateNextQuestion failed: %v", err)
	}

	result, err := engine.ProcessAnswer(ctx, session.ID, 1, []byte("audio"), 0)
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if result.Transcript != stub.transcript {
		t.Errorf("transcript = %q, expected %q", result.Transcript, stub.transcript)
	}
	if result.Evaluation.OverallScore != 80 {
		t.Errorf("overall score = %d, expected 80", result.Evaluation.OverallScore)
	}

	qa, err := repo.GetQuestionAnswer(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("GetQuestionAnswer failed: %v", err)
	}
	if !qa.Answered() {
		t.Fatal("question not marked as answered")
	}
	if qa.OverallScore == nil || *qa.OverallScore != 80 {
		t.Errorf("persisted overall score = %v, expected 80", qa.OverallScore)
	}
	expectedWords := len(strings.Fields(stub.transcript))
	if qa.WordCount == nil || *qa.WordCount != expectedWords {
		t.Errorf("word count = %v, expected %d", qa.WordCount, expectedWords)
	}
	if qa.AnsweredAt == nil {
		t.Error("answered_at not stamped")
	}
}

func TestProcessAnswerResubmissionOverwrites(t *testing.T) {
	stub := &stubAI{transcript: "first answer"}
	engine, repo := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); err != nil {
		t.Fatalf("GenerateNextQuestion failed: %v", err)
	}

	if _, err := engine.ProcessAnswer(ctx, session.ID, 1, []byte("audio"), 0); err != nil {
		t.Fatalf("first ProcessAnswer failed: %v", err)
	}

	stub.transcript = "second much better answer"
	if _, err := engine.ProcessAnswer(ctx, session.ID, 1, []byte("audio"), 0); err != nil {
		t.Fatalf("second ProcessAnswer failed: %v", err)
	}

	qa, err := repo.GetQuestionAnswer(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("GetQuestionAnswer failed: %v", err)
	}
	if qa.Transcript == nil || *qa.Transcript != "second much better answer" {
		t.Errorf("transcript after resubmission = %v, expected overwrite", qa.Transcript)
	}
}

func TestProcessAnswerTranscriptionFailurePropagates(t *testing.T) {
	stub := &stubAI{transcribeErr: errors.New("speech api down")}
	engine, repo := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	stub.transcribeErr = nil
	if _, err := engine.GenerateNextQuestion(ctx, session.ID, 0); err != nil {
		t.Fatalf("GenerateNextQuestion failed: %v", err)
	}

	stub.transcribeErr = errors.New("speech api down")
	_, err := engine.ProcessAnswer(ctx, session.ID, 1, []byte("audio"), 0)
	if !IsUpstream(err) {
		t.Fatalf("transcription failure error = %v, expected upstream error", err)
	}

	// The record stays unanswered so the client can retry with its audio.
	qa, err := repo.GetQuestionAnswer(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("GetQuestionAnswer failed: %v", err)
	}
	if qa.Answered() {
		t.Error("question marked answered despite transcription failure")
	}
}

func TestRecordTabSwitchTerminatesOnThird(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	for i := 1; i <= 2; i++ {
		result, err := engine.RecordTabSwitch(ctx, session.ID)
		if err != nil {
			t.Fatalf("RecordTabSwitch %d failed: %v", i, err)
		}
		if result.TabSwitches != i {
			t.Errorf("switch %d count = %d", i, result.TabSwitches)
		}
		if result.ShouldTerminate {
			t.Errorf("switch %d terminated early", i)
		}
	}

	result, err := engine.RecordTabSwitch(ctx, session.ID)
	if err != nil {
		t.Fatalf("third RecordTabSwitch failed: %v", err)
	}
	if !result.ShouldTerminate {
		t.Fatal("third switch did not terminate")
	}
	if result.TabSwitches != models.TabSwitchLimit {
		t.Errorf("count at termination = %d, expected %d", result.TabSwitches, models.TabSwitchLimit)
	}

	reloaded, err := engine.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if reloaded.Status != models.StatusCancelled {
		t.Errorf("status after termination = %s, expected cancelled", reloaded.Status)
	}
	if !reloaded.TerminatedForTabSwitches {
		t.Error("terminated_for_tab_switches not set")
	}
	if reloaded.CompletedAt == nil {
		t.Error("completed_at not stamped on termination")
	}
}

func TestRecordTabSwitchOnTerminalSessionIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	for i := 0; i < models.TabSwitchLimit; i++ {
		if _, err := engine.RecordTabSwitch(ctx, session.ID); err != nil {
			t.Fatalf("RecordTabSwitch failed: %v", err)
		}
	}

	result, err := engine.RecordTabSwitch(ctx, session.ID)
	if err != nil {
		t.Fatalf("post-termination RecordTabSwitch failed: %v", err)
	}
	if result.ShouldTerminate {
		t.Error("terminal session reported termination again")
	}
	if result.TabSwitches != models.TabSwitchLimit {
		t.Errorf("terminal session count = %d, expected %d", result.TabSwitches, models.TabSwitchLimit)
	}
}

func TestCompleteSessionTransitions(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	completed, err := engine.CompleteSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if completed.Status != models.StatusCompleted {
		t.Errorf("status = %s, expected completed", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	if _, err := engine.CompleteSession(ctx, session.ID); !IsPolicyViolation(err) {
		t.Errorf("double complete error = %v, expected policy violation", err)
	}
	if _, err := engine.CancelSession(ctx, session.ID); !IsPolicyViolation(err) {
		t.Errorf("cancel after complete error = %v, expected policy violation", err)
	}
}

func TestGetResultsRequiresTerminalStatus(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	if _, err := engine.GetResults(ctx, session.ID); !IsPolicyViolation(err) {
		t.Errorf("results for in-progress session error = %v, expected policy violation", err)
	}

	if _, err := engine.CompleteSession(ctx, session.ID); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	report, err := engine.GetResults(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if report.SessionID != session.ID {
		t.Errorf("report session id = %s, expected %s", report.SessionID, session.ID)
	}
}

func TestFullInterviewFlow(t *testing.T) {
	stub := &stubAI{transcript: "a complete answer covering the main points"}
	engine, _ := newTestEngine(t, stub)
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	for i := 1; i <= 3; i++ {
		q, err := engine.GenerateNextQuestion(ctx, session.ID, 0)
		if err != nil {
			t.Fatalf("GenerateNextQuestion %d failed: %v", i, err)
		}
		if q.Number != i {
			t.Errorf("question number = %d, expected %d", q.Number, i)
		}
		if _, err := engine.ProcessAnswer(ctx, session.ID, i, []byte("audio"), 0); err != nil {
			t.Fatalf("ProcessAnswer %d failed: %v", i, err)
		}
	}

	if _, err := engine.CompleteSession(ctx, session.ID); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	report, err := engine.GetResults(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if report.TotalAnswered != 3 {
		t.Errorf("TotalAnswered = %d, expected 3", report.TotalAnswered)
	}
	if report.AverageScore != 80 {
		t.Errorf("AverageScore = %d, expected 80", report.AverageScore)
	}
	if report.Grade != "Good" {
		t.Errorf("Grade = %q, expected Good", report.Grade)
	}
	if len(report.UntestedSkills) != 0 {
		t.Errorf("UntestedSkills = %v, expected none", report.UntestedSkills)
	}
}
