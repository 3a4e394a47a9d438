package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/akashpai/prepvox/backend/models"
	ws "github.com/akashpai/prepvox/backend/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// InterviewSocket upgrades per-session websocket connections and binds each
// one to an answer recorder and a tab-switch monitor. The socket carries the
// live capture stream; final submission still happens on the HTTP path.
type InterviewSocket struct {
	engine   *InterviewEngine
	gateway  *EvaluationGateway
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewInterviewSocket(engine *InterviewEngine, gateway *EvaluationGateway, hub *ws.Hub, allowedOrigins string) *InterviewSocket {
	return &InterviewSocket{
		engine:  engine,
		gateway: gateway,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, allowedOrigins)
			},
		},
	}
}

// socketState is the per-connection capture state.
type socketState struct {
	mu             sync.Mutex
	recorder       *AnswerRecorder
	questionNumber int
}

func (s *InterviewSocket) HandleConnection(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	session, err := s.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if session.UserID != user.ID {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err, "session_id", sessionID)
		return
	}

	client := s.hub.RegisterClient(conn, user.ID, session.ID)
	state := &socketState{}

	monitor := NewTabSwitchMonitor(s.engine, session.ID, func() {
		state.mu.Lock()
		recorder := state.recorder
		state.mu.Unlock()
		if recorder != nil {
			recorder.Stop(StopManual)
		}
		client.SendMessage(ws.Message{Type: "terminate", Content: "session cancelled after repeated tab switches"})
	})

	client.MessageHandler = func(c *ws.Client, raw []byte) {
		s.handleMessage(c, state, monitor, session, raw)
	}
	client.OnClose = func() {
		state.mu.Lock()
		recorder := state.recorder
		state.mu.Unlock()
		if recorder != nil {
			recorder.Stop(StopManual)
		}
	}

	go client.WritePump()
	go client.ReadPump()
}

func (s *InterviewSocket) handleMessage(c *ws.Client, state *socketState, monitor *TabSwitchMonitor, session *models.InterviewSession, raw []byte) {
	var msg ws.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Error("Failed to unmarshal message", "error", err, "session_id", c.SessionID)
		return
	}

	now := time.Now()

	switch msg.Type {
	case "audio_chunk":
		audio, err := base64.StdEncoding.DecodeString(msg.AudioDataBase64)
		if err != nil {
			c.SendMessage(ws.Message{Type: "error", Content: "invalid audio encoding"})
			return
		}

		state.mu.Lock()
		if state.recorder == nil || !state.recorder.Recording() {
			state.questionNumber = msg.QuestionNumber
			state.recorder = s.newRecorder(c, state, session)
			state.recorder.Start(context.Background(), now)
		}
		recorder := state.recorder
		state.mu.Unlock()

		recorder.PushAudio(audio, now)

	case "audio_level":
		state.mu.Lock()
		recorder := state.recorder
		state.mu.Unlock()
		if recorder != nil {
			recorder.PushLevel(msg.Level, now)
		}

	case "stop_recording":
		state.mu.Lock()
		recorder := state.recorder
		state.mu.Unlock()
		if recorder != nil {
			recorder.Stop(StopManual)
		}

	case "visibility_hidden":
		result, err := monitor.HandleHidden(context.Background(), now)
		if err != nil {
			slog.Error("Tab switch handling failed", "error", err, "session_id", c.SessionID)
			c.SendMessage(ws.Message{Type: "error", Content: "failed to record tab switch"})
			return
		}
		payload, _ := json.Marshal(result)
		c.SendMessage(ws.Message{Type: "tab_switch", Content: string(payload)})

	default:
		slog.Warn("Unknown message type", "type", msg.Type, "session_id", c.SessionID)
	}
}

// newRecorder builds the capture pipeline for one question. The live
// transcript streams back over the socket; the finalized audio is submitted
// through the same evaluation path as an HTTP answer upload.
func (s *InterviewSocket) newRecorder(c *ws.Client, state *socketState, session *models.InterviewSession) *AnswerRecorder {
	onPartial := func(text string) {
		c.SendMessage(ws.Message{Type: "partial_transcript", Content: text})
	}

	onFinal := func(audio []byte, reason string) {
		state.mu.Lock()
		questionNumber := state.questionNumber
		state.mu.Unlock()

		if len(audio) == 0 {
			c.SendMessage(ws.Message{Type: "error", Content: "no audio captured"})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		result, err := s.engine.ProcessAnswer(ctx, session.ID, questionNumber, audio, session.ExperienceYears)
		if err != nil {
			slog.Error("Answer processing failed", "error", err, "session_id", session.ID, "question_number", questionNumber)
			c.SendMessage(ws.Message{Type: "error", Content: "failed to process answer"})
			return
		}

		payload, _ := json.Marshal(result)
		c.SendMessage(ws.Message{Type: "answer_result", Content: string(payload), QuestionNumber: questionNumber})
		slog.Info("Answer finalized over websocket", "session_id", session.ID, "question_number", questionNumber, "stop_reason", reason)
	}

	return NewAnswerRecorder(DefaultCaptureConfig(), s.gateway, onFinal, onPartial)
}
