// Package mock provides a test double for the realtime.Session interface.
//
// Drive the agent by emitting server events through the session's registry and
// inspect appended audio frames and truncate calls:
//
//	sess := mock.NewSession()
//	content := sess.EmitResponseContent("item-1", 0)
//	content.Text <- "Hello"
//	sess.EmitInputSpeechStarted()
package mock

import (
	"context"
	"sync"

	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/realtime"
)

// Compile-time interface check.
var _ realtime.Session = (*Session)(nil)

// TruncateCall records one TruncateItem invocation.
type TruncateCall struct {
	ItemID       string
	ContentIndex int
	AudioEndMS   int64
}

// Content pairs the writable ends of one emitted response content with the
// streams handed to the agent. Close both channels to signal utterance end.
type Content struct {
	Text  chan string
	Audio chan []byte
}

// Session is a mock implementation of realtime.Session.
type Session struct {
	registry *realtime.EventRegistry

	mu sync.Mutex

	// AppendedFrames records every frame passed to AppendInputAudio, in order.
	AppendedFrames []audio.AudioFrame

	// AppendErr, if non-nil, is returned from AppendInputAudio.
	AppendErr error

	// TruncateCalls records every TruncateItem invocation, in order.
	TruncateCalls []TruncateCall

	// TruncateErr, if non-nil, is returned from TruncateItem.
	TruncateErr error

	// CloseCount is the number of Close invocations.
	CloseCount int
}

// NewSession creates an empty mock session.
func NewSession() *Session {
	return &Session{registry: realtime.NewEventRegistry()}
}

// Subscribe implements realtime.Session.
func (s *Session) Subscribe(kind realtime.EventKind, h realtime.Handler) {
	s.registry.Subscribe(kind, h)
}

// AppendInputAudio implements realtime.Session.
func (s *Session) AppendInputAudio(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.AppendedFrames = append(s.AppendedFrames, frame)
	return nil
}

// TruncateItem implements realtime.Session.
func (s *Session) TruncateItem(_ context.Context, itemID string, contentIndex int, audioEndMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TruncateCalls = append(s.TruncateCalls, TruncateCall{
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMS:   audioEndMS,
	})
	return s.TruncateErr
}

// Close implements realtime.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// EmitResponseContent emits an EventResponseContentAdded carrying freshly
// created buffered streams, and returns the writable ends.
func (s *Session) EmitResponseContent(itemID string, contentIndex int) *Content {
	c := &Content{
		Text:  make(chan string, 64),
		Audio: make(chan []byte, 64),
	}
	s.registry.Emit(realtime.Event{
		Kind: realtime.EventResponseContentAdded,
		Content: &realtime.ResponseContent{
			ItemID:       itemID,
			ContentIndex: contentIndex,
			TextStream:   c.Text,
			AudioStream:  c.Audio,
		},
	})
	return c
}

// EmitInputSpeechStarted emits an EventInputSpeechStarted.
func (s *Session) EmitInputSpeechStarted() {
	s.registry.Emit(realtime.Event{Kind: realtime.EventInputSpeechStarted})
}

// EmitInputSpeechCommitted emits an EventInputSpeechCommitted.
func (s *Session) EmitInputSpeechCommitted() {
	s.registry.Emit(realtime.Event{Kind: realtime.EventInputSpeechCommitted})
}

// EmitTranscriptionCompleted emits an EventInputSpeechTranscriptionCompleted
// with the given final transcript.
func (s *Session) EmitTranscriptionCompleted(transcript, language string) {
	s.registry.Emit(realtime.Event{
		Kind:       realtime.EventInputSpeechTranscriptionCompleted,
		Transcript: transcript,
		Language:   language,
	})
}

// AppendedFramesSnapshot returns a copy of all appended frames.
func (s *Session) AppendedFramesSnapshot() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.AudioFrame(nil), s.AppendedFrames...)
}

// TruncateCallsSnapshot returns a copy of all recorded truncate calls.
func (s *Session) TruncateCallsSnapshot() []TruncateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TruncateCall(nil), s.TruncateCalls...)
}
