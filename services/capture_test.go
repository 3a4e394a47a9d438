package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// quietConfig keeps the chunk drain from firing on its own so tests control
// every step explicitly.
func quietConfig() CaptureConfig {
	return CaptureConfig{
		SettlingDelay:    300 * time.Millisecond,
		SilenceThreshold: 0.02,
		SilenceWindow:    1 * time.Second,
		MinRecording:     3 * time.Second,
		ChunkInterval:    time.Hour,
		ContextWords:     5,
	}
}

type captureSink struct {
	mu       sync.Mutex
	audio    []byte
	reason   string
	finals   int
	partials []string
}

func (s *captureSink) onFinal(audio []byte, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = audio
	s.reason = reason
	s.finals++
}

func (s *captureSink) onPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partials = append(s.partials, text)
}

type fixedChunkTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	contexts []string
}

func (f *fixedChunkTranscriber) TranscribeChunk(ctx context.Context, audioData []byte, previousContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, previousContext)
	return f.text, f.err
}

func TestRecorderDiscardsAudioDuringSettling(t *testing.T) {
	sink := &captureSink{}
	r := NewAnswerRecorder(quietConfig(), nil, sink.onFinal, nil)

	start := time.Now()
	r.Start(context.Background(), start)

	r.PushAudio([]byte("early"), start.Add(100*time.Millisecond))
	r.PushAudio([]byte("kept"), start.Add(400*time.Millisecond))
	r.Stop(StopManual)

	if string(sink.audio) != "kept" {
		t.Errorf("final audio = %q, expected only the post-settling chunk", sink.audio)
	}
	if sink.reason != StopManual {
		t.Errorf("stop reason = %q, expected manual", sink.reason)
	}
}

func TestRecorderSilenceStopRespectsMinDuration(t *testing.T) {
	sink := &captureSink{}
	r := NewAnswerRecorder(quietConfig(), nil, sink.onFinal, nil)

	start := time.Now()
	r.Start(context.Background(), start)
	r.PushAudio([]byte("speech"), start.Add(500*time.Millisecond))

	// Silence starting early in the recording must not stop before the
	// minimum duration, even once the silence window has elapsed.
	if stopped := r.PushLevel(0.001, start.Add(1*time.Second)); stopped {
		t.Error("stopped during silence window")
	}
	if stopped := r.PushLevel(0.001, start.Add(2500*time.Millisecond)); stopped {
		t.Error("stopped before minimum recording duration")
	}
	if !r.Recording() {
		t.Fatal("recorder stopped early")
	}

	// Past the minimum, sustained silence stops the recording.
	if stopped := r.PushLevel(0.001, start.Add(3500*time.Millisecond)); !stopped {
		t.Fatal("expected automatic stop after silence window past minimum duration")
	}
	if sink.reason != StopSilence {
		t.Errorf("stop reason = %q, expected silence", sink.reason)
	}
}

func TestRecorderSpeechResetsSilenceTimer(t *testing.T) {
	sink := &captureSink{}
	r := NewAnswerRecorder(quietConfig(), nil, sink.onFinal, nil)

	start := time.Now()
	r.Start(context.Background(), start)

	r.PushLevel(0.001, start.Add(4*time.Second))
	// Loud sample resets the timer.
	r.PushLevel(0.5, start.Add(4500*time.Millisecond))
	if stopped := r.PushLevel(0.001, start.Add(5*time.Second)); stopped {
		t.Error("silence timer not reset by speech")
	}
	if stopped := r.PushLevel(0.001, start.Add(6100*time.Millisecond)); !stopped {
		t.Error("expected stop after a full silence window following speech")
	}
}

func TestRecorderStopDeliversOnce(t *testing.T) {
	sink := &captureSink{}
	r := NewAnswerRecorder(quietConfig(), nil, sink.onFinal, nil)

	start := time.Now()
	r.Start(context.Background(), start)
	r.PushAudio([]byte("audio"), start.Add(time.Second))

	r.Stop(StopManual)
	r.Stop(StopSilence)
	r.Stop(StopManual)

	if sink.finals != 1 {
		t.Errorf("onFinal called %d times, expected 1", sink.finals)
	}
	if r.Recording() {
		t.Error("recorder still recording after stop")
	}
	// Audio pushed after stop is discarded.
	r.PushAudio([]byte("late"), start.Add(2*time.Second))
	if string(sink.audio) != "audio" {
		t.Errorf("audio after stop = %q, expected unchanged", sink.audio)
	}
}

func TestRecorderStopCancelsLiveTranscription(t *testing.T) {
	sink := &captureSink{}
	transcriber := &fixedChunkTranscriber{text: "words"}
	r := NewAnswerRecorder(quietConfig(), transcriber, sink.onFinal, sink.onPartial)

	r.Start(context.Background(), time.Now())
	ctx := r.ctx
	r.Stop(StopManual)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the live-transcription context")
	}
}

func TestDrainPendingAppendsWordsAndNotifies(t *testing.T) {
	sink := &captureSink{}
	transcriber := &fixedChunkTranscriber{text: "hello there general"}
	r := NewAnswerRecorder(quietConfig(), transcriber, sink.onFinal, sink.onPartial)

	start := time.Now()
	r.Start(context.Background(), start)
	r.PushAudio([]byte("chunk-1"), start.Add(time.Second))

	r.drainPending()

	if got := r.LiveTranscript(); got != "hello there general" {
		t.Errorf("live transcript = %q", got)
	}
	if len(sink.partials) != 1 || sink.partials[0] != "hello there general" {
		t.Errorf("partials = %v", sink.partials)
	}

	// Nothing pending: no extra transcriber call.
	calls := len(transcriber.contexts)
	r.drainPending()
	if len(transcriber.contexts) != calls {
		t.Error("drain with empty pending buffer still called the transcriber")
	}
}

func TestDrainPendingSwallowsTranscriberErrors(t *testing.T) {
	sink := &captureSink{}
	transcriber := &fixedChunkTranscriber{err: context.DeadlineExceeded}
	r := NewAnswerRecorder(quietConfig(), transcriber, sink.onFinal, sink.onPartial)

	start := time.Now()
	r.Start(context.Background(), start)
	r.PushAudio([]byte("chunk"), start.Add(time.Second))

	r.drainPending()

	if got := r.LiveTranscript(); got != "" {
		t.Errorf("live transcript after failure = %q, expected empty", got)
	}
	if len(sink.partials) != 0 {
		t.Errorf("partials after failure = %v, expected none", sink.partials)
	}
	if !r.Recording() {
		t.Error("transcription failure must not stop the recording")
	}
}

func TestDrainPendingBoundsContextWindow(t *testing.T) {
	sink := &captureSink{}
	transcriber := &fixedChunkTranscriber{text: "one two three four five six seven"}
	r := NewAnswerRecorder(quietConfig(), transcriber, sink.onFinal, sink.onPartial)

	start := time.Now()
	r.Start(context.Background(), start)

	r.PushAudio([]byte("chunk-1"), start.Add(time.Second))
	r.drainPending()
	r.PushAudio([]byte("chunk-2"), start.Add(2*time.Second))
	r.drainPending()

	if len(transcriber.contexts) != 2 {
		t.Fatalf("transcriber called %d times, expected 2", len(transcriber.contexts))
	}
	if transcriber.contexts[0] != "" {
		t.Errorf("first chunk context = %q, expected empty", transcriber.contexts[0])
	}
	// Seven words accumulated, window capped at five.
	words := strings.Fields(transcriber.contexts[1])
	if len(words) != 5 {
		t.Errorf("second chunk context has %d words, expected 5: %q", len(words), transcriber.contexts[1])
	}
	if transcriber.contexts[1] != "three four five six seven" {
		t.Errorf("context window = %q, expected the trailing words", transcriber.contexts[1])
	}
}
