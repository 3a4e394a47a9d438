package services

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// CaptureConfig tunes the answer capture pipeline.
type CaptureConfig struct {
	// SettlingDelay is how long after Start the mic input is ignored, so the
	// tail of question playback is not captured.
	SettlingDelay time.Duration
	// SilenceThreshold is the audio level below which a sample counts as
	// silence.
	SilenceThreshold float64
	// SilenceWindow is how long the level must stay below the threshold
	// before recording stops automatically.
	SilenceWindow time.Duration
	// MinRecording guards against a quiet opening moment truncating the
	// answer: automatic stop is suppressed until this much has elapsed.
	MinRecording time.Duration
	// ChunkInterval is how often buffered audio is drained to the chunk
	// transcriber for the live preview.
	ChunkInterval time.Duration
	// ContextWords bounds the trailing window of previously transcribed
	// words passed as context with each chunk.
	ContextWords int
}

// DefaultCaptureConfig mirrors the browser recorder's tuning.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SettlingDelay:    300 * time.Millisecond,
		SilenceThreshold: 0.02,
		SilenceWindow:    3 * time.Second,
		MinRecording:     5 * time.Second,
		ChunkInterval:    2 * time.Second,
		ContextWords:     30,
	}
}

// ChunkTranscriber is the best-effort incremental transcription capability.
type ChunkTranscriber interface {
	TranscribeChunk(ctx context.Context, audioData []byte, previousContext string) (string, error)
}

// Stop reasons reported to the finalize callback.
const (
	StopSilence = "silence"
	StopManual  = "manual"
)

// AnswerRecorder produces one finalized audio payload per question without
// requiring the user to signal completion, while streaming a best-effort live
// transcript. All loops hang off a single cancellable context; cancelling it
// stops the silence detection and the live-transcription drain
// deterministically.
type AnswerRecorder struct {
	cfg         CaptureConfig
	transcriber ChunkTranscriber

	// onFinal receives the assembled audio exactly once, with the reason
	// recording stopped.
	onFinal func(audio []byte, reason string)

	// onPartial receives each live-transcript fragment as it arrives.
	onPartial func(text string)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	recording    bool
	startedAt    time.Time
	silenceSince time.Time
	audio        bytes.Buffer
	pending      bytes.Buffer
	liveWords    []string
}

func NewAnswerRecorder(cfg CaptureConfig, transcriber ChunkTranscriber, onFinal func(audio []byte, reason string), onPartial func(text string)) *AnswerRecorder {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 2 * time.Second
	}
	if cfg.ContextWords <= 0 {
		cfg.ContextWords = 30
	}
	return &AnswerRecorder{
		cfg:         cfg,
		transcriber: transcriber,
		onFinal:     onFinal,
		onPartial:   onPartial,
	}
}

// Start begins recording at the given time. The live-transcription loop runs
// until the recorder stops or the parent context is cancelled.
func (r *AnswerRecorder) Start(ctx context.Context, now time.Time) {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = true
	r.startedAt = now
	r.silenceSince = time.Time{}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if r.transcriber != nil {
		go r.runLiveTranscription()
	}
	slog.Info("Answer recording started")
}

// Recording reports whether the recorder is currently active.
func (r *AnswerRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// PushAudio appends captured audio. Input inside the settling delay or after
// stop is discarded.
func (r *AnswerRecorder) PushAudio(chunk []byte, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || now.Sub(r.startedAt) < r.cfg.SettlingDelay {
		return
	}
	r.audio.Write(chunk)
	r.pending.Write(chunk)
}

// PushLevel feeds one audio-level sample into the silence detector. It
// returns true when the sample triggered an automatic stop.
func (r *AnswerRecorder) PushLevel(level float64, now time.Time) bool {
	r.mu.Lock()
	if !r.recording || now.Sub(r.startedAt) < r.cfg.SettlingDelay {
		r.mu.Unlock()
		return false
	}

	if level >= r.cfg.SilenceThreshold {
		r.silenceSince = time.Time{}
		r.mu.Unlock()
		return false
	}

	if r.silenceSince.IsZero() {
		r.silenceSince = now
	}

	silentFor := now.Sub(r.silenceSince)
	recordedFor := now.Sub(r.startedAt)
	shouldStop := silentFor >= r.cfg.SilenceWindow && recordedFor >= r.cfg.MinRecording
	r.mu.Unlock()

	if shouldStop {
		r.Stop(StopSilence)
	}
	return shouldStop
}

// Stop finalizes the recording. Safe to call more than once; only the first
// call assembles and delivers the audio. The live transcript is a UI preview
// and is discarded: the authoritative transcript comes from transcribing the
// full audio.
func (r *AnswerRecorder) Stop(reason string) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	audio := make([]byte, r.audio.Len())
	copy(audio, r.audio.Bytes())
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	slog.Info("Answer recording stopped", "reason", reason, "audio_size", len(audio))
	if r.onFinal != nil {
		r.onFinal(audio, reason)
	}
}

// LiveTranscript returns the preview transcript accumulated so far.
func (r *AnswerRecorder) LiveTranscript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.liveWords, " ")
}

func (r *AnswerRecorder) runLiveTranscription() {
	ticker := time.NewTicker(r.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drainPending()
		}
	}
}

// drainPending sends accumulated audio since the last drain to the chunk
// transcriber. Failures are logged and swallowed: the preview simply gains no
// text, and the submission path is unaffected.
func (r *AnswerRecorder) drainPending() {
	r.mu.Lock()
	if !r.recording || r.pending.Len() == 0 {
		r.mu.Unlock()
		return
	}
	chunk := make([]byte, r.pending.Len())
	copy(chunk, r.pending.Bytes())
	r.pending.Reset()
	contextWindow := r.trailingWordsLocked()
	ctx := r.ctx
	r.mu.Unlock()

	text, err := r.transcriber.TranscribeChunk(ctx, chunk, contextWindow)
	if err != nil {
		slog.Warn("Live transcription chunk failed", "error", err, "chunk_size", len(chunk))
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	r.mu.Lock()
	r.liveWords = append(r.liveWords, strings.Fields(text)...)
	r.mu.Unlock()

	if r.onPartial != nil {
		r.onPartial(text)
	}
}

func (r *AnswerRecorder) trailingWordsLocked() string {
	if len(r.liveWords) <= r.cfg.ContextWords {
		return strings.Join(r.liveWords, " ")
	}
	return strings.Join(r.liveWords[len(r.liveWords)-r.cfg.ContextWords:], " ")
}
