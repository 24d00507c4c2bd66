// Package openai implements the realtime.Session interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime endpoint
// and exchanges JSON events according to the Realtime API protocol. Audio is
// transmitted as base64-encoded PCM16 chunks in both directions. Each model
// utterance is demultiplexed into per-content text and audio streams keyed by
// (item_id, content_index), surfaced through the typed event registry as
// realtime.EventResponseContentAdded.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/realtime"
)

// Compile-time assertion that Session satisfies the realtime.Session interface.
var _ realtime.Session = (*Session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// defaultStreamBuf is the buffer depth of the per-content text and audio
	// stream channels created when a new response content part arrives.
	defaultStreamBuf = 64
)

// Config holds the connection settings for a Realtime session.
type Config struct {
	// APIKey authenticates against the OpenAI API. Required.
	APIKey string

	// Model selects the realtime model. Defaults to gpt-4o-realtime-preview.
	Model string

	// BaseURL overrides the WebSocket endpoint. Primarily used in tests.
	BaseURL string

	// Voice selects the synthesized voice (e.g., "alloy"). Optional.
	Voice string

	// Instructions is the system-level prompt for the session. Optional.
	Instructions string

	// InputTranscription enables server-side transcription of user speech.
	// When true, the session emits EventInputSpeechTranscriptionCompleted.
	InputTranscription bool
}

// Connect establishes a Realtime session. The returned Session is ready to
// accept audio as soon as the initial session.update has been written.
// The caller owns the Session and must call Close.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	wsURL := fmt.Sprintf("%s?model=%s", baseURL, model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + cfg.APIKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s := &Session{
		conn:     conn,
		registry: realtime.NewEventRegistry(),
		contents: make(map[contentKey]*contentStreams),
		ctx:      sessCtx,
		cancel:   sessCancel,
	}

	if err := s.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go s.receiveLoop()

	return s, nil
}

// contentKey addresses one content part of one conversation item.
type contentKey struct {
	itemID       string
	contentIndex int
}

// contentStreams owns the writable ends of one utterance's streams.
type contentStreams struct {
	text  chan string
	audio chan []byte
}

// Session is an open OpenAI Realtime session.
type Session struct {
	conn     *websocket.Conn
	registry *realtime.EventRegistry

	// writeMu serializes outgoing WebSocket writes.
	writeMu sync.Mutex

	// mu guards contents and closed.
	mu       sync.Mutex
	contents map[contentKey]*contentStreams
	closed   bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Subscribe implements realtime.Session.
func (s *Session) Subscribe(kind realtime.EventKind, h realtime.Handler) {
	s.registry.Subscribe(kind, h)
}

// AppendInputAudio implements realtime.Session. The frame's PCM data is
// base64-encoded into an input_audio_buffer.append event.
func (s *Session) AppendInputAudio(frame audio.AudioFrame) error {
	if len(frame.Data) == 0 {
		return nil
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(frame.Data),
	})
}

// TruncateItem implements realtime.Session. It issues a
// conversation.item.truncate event addressed at the identified content part.
func (s *Session) TruncateItem(_ context.Context, itemID string, contentIndex int, audioEndMS int64) error {
	return s.writeJSON(truncateItemMessage{
		Type:         "conversation.item.truncate",
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMS:   audioEndMS,
	})
}

// Close implements realtime.Session. It terminates the WebSocket connection
// and closes all open content streams.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.closeAllContents()
	})
	return nil
}

// ── Outgoing protocol messages ────────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string             `json:"voice,omitempty"`
	Instructions            string             `json:"instructions,omitempty"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription *transcriptionCfg  `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionCfg  `json:"turn_detection,omitempty"`
}

type transcriptionCfg struct {
	Model string `json:"model"`
}

type turnDetectionCfg struct {
	Type string `json:"type"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type truncateItemMessage struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}

func (s *Session) sendSessionUpdate(cfg Config) error {
	params := sessionParams{
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection:     &turnDetectionCfg{Type: "server_vad"},
	}
	if cfg.InputTranscription {
		params.InputAudioTranscription = &transcriptionCfg{Model: "whisper-1"}
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("openai: write: %w", err)
	}
	return nil
}

// ── Incoming protocol messages ────────────────────────────────────────────────

// serverErrorDetail represents the nested error object in a Realtime error
// event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.content_part.added / response.audio.delta /
	// response.audio_transcript.delta / *.done
	ItemID       string `json:"item_id,omitempty"`
	ContentIndex int    `json:"content_index,omitempty"`
	Delta        string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns the
// content stream channels: it closes them all when it exits.
func (s *Session) receiveLoop() {
	defer s.closeAllContents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				slog.Warn("openai realtime: receive loop ended", "err", err)
			}
			return
		}
		s.handleServerEvent(data)
	}
}

// handleServerEvent decodes one raw server event and routes it. Malformed
// events are skipped; unknown event types are ignored.
func (s *Session) handleServerEvent(data []byte) {
	var evt serverEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return
	}

	switch evt.Type {
	case "response.content_part.added":
		s.addContent(evt.ItemID, evt.ContentIndex)

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(chunk) == 0 {
			return
		}
		if cs := s.content(evt.ItemID, evt.ContentIndex); cs != nil {
			select {
			case cs.audio <- chunk:
			case <-s.ctx.Done():
			}
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		if cs := s.content(evt.ItemID, evt.ContentIndex); cs != nil {
			select {
			case cs.text <- evt.Delta:
			case <-s.ctx.Done():
			}
		}

	case "response.content_part.done":
		s.closeContent(evt.ItemID, evt.ContentIndex)

	case "response.done":
		// Defensive close of any content part that never saw its done event.
		s.closeAllContents()

	case "input_audio_buffer.speech_started":
		s.registry.Emit(realtime.Event{Kind: realtime.EventInputSpeechStarted})

	case "input_audio_buffer.committed":
		s.registry.Emit(realtime.Event{Kind: realtime.EventInputSpeechCommitted})

	case "conversation.item.input_audio_transcription.completed":
		s.registry.Emit(realtime.Event{
			Kind:       realtime.EventInputSpeechTranscriptionCompleted,
			Transcript: evt.Transcript,
		})

	case "error":
		if evt.Error != nil {
			slog.Warn("openai realtime: server error",
				"error_type", evt.Error.Type,
				"code", evt.Error.Code,
				"message", evt.Error.Message,
			)
		}
	}
}

// addContent creates the streams for a new content part and emits the
// response-content-added event.
func (s *Session) addContent(itemID string, contentIndex int) {
	key := contentKey{itemID: itemID, contentIndex: contentIndex}
	cs := &contentStreams{
		text:  make(chan string, defaultStreamBuf),
		audio: make(chan []byte, defaultStreamBuf),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, dup := s.contents[key]; dup {
		s.mu.Unlock()
		return
	}
	s.contents[key] = cs
	s.mu.Unlock()

	s.registry.Emit(realtime.Event{
		Kind: realtime.EventResponseContentAdded,
		Content: &realtime.ResponseContent{
			ItemID:       itemID,
			ContentIndex: contentIndex,
			TextStream:   cs.text,
			AudioStream:  cs.audio,
		},
	})
}

func (s *Session) content(itemID string, contentIndex int) *contentStreams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contents[contentKey{itemID: itemID, contentIndex: contentIndex}]
}

// closeContent closes and forgets one content part's streams.
func (s *Session) closeContent(itemID string, contentIndex int) {
	key := contentKey{itemID: itemID, contentIndex: contentIndex}
	s.mu.Lock()
	cs := s.contents[key]
	delete(s.contents, key)
	s.mu.Unlock()

	if cs != nil {
		close(cs.text)
		close(cs.audio)
	}
}

// closeAllContents closes every open content stream. Used on response.done
// and session close.
func (s *Session) closeAllContents() {
	s.mu.Lock()
	open := s.contents
	s.contents = make(map[contentKey]*contentStreams)
	s.mu.Unlock()

	for _, cs := range open {
		close(cs.text)
		close(cs.audio)
	}
}
