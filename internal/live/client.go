package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// captureMimeType tags outbound microphone chunks with their PCM rate.
const captureMimeType = "audio/pcm;rate=16000"

// ErrChannelClosed is returned when writing to a session that has ended.
var ErrChannelClosed = errors.New("live channel is closed")

// Event is an inbound session event. One websocket frame may expand into
// several events (audio, transcript and interruption can share a frame).
type Event interface {
	eventType() string
}

// AudioEvent carries one base64 PCM chunk of synthesized speech.
type AudioEvent struct {
	Data string
}

func (e AudioEvent) eventType() string { return "audio" }

// TranscriptEvent carries the current transcription of the model's speech.
// Each event is the full current text, not a delta.
type TranscriptEvent struct {
	Text string
}

func (e TranscriptEvent) eventType() string { return "transcript" }

// ToolCallEvent carries one batch of tool invocations. Every call must be
// answered via SendToolResponses, in any order.
type ToolCallEvent struct {
	Calls []FunctionCall
}

func (e ToolCallEvent) eventType() string { return "tool_call" }

// InterruptedEvent signals barge-in: the user started speaking during
// playback and queued audio should be discarded.
type InterruptedEvent struct{}

func (e InterruptedEvent) eventType() string { return "interrupted" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) eventType() string { return "turn_complete" }

// ClosedEvent is the final event on the channel. Err is nil for a clean
// close and carries the failure reason otherwise.
type ClosedEvent struct {
	Err error
}

func (e ClosedEvent) eventType() string { return "closed" }

// Config describes one live session.
type Config struct {
	APIKey            string
	Model             string
	SystemInstruction string
	VoiceName         string
	Tools             []FunctionDeclaration

	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

// Client is a duplex websocket session with the live API. Inbound traffic
// is surfaced on Events(); outbound writes are serialized by a mutex.
type Client struct {
	conn   *websocket.Conn
	logger *log.Logger

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial opens the websocket, sends the session setup and waits for the
// server's acknowledgment before returning. The returned client is live:
// its read loop is already feeding Events().
func Dial(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	endpoint := base + "?key=" + url.QueryEscape(cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}

	setup := setupMessage{Setup: setupPayload{
		Model: cfg.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.VoiceName}},
			},
		},
		OutputAudioTranscription: &struct{}{},
	}}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &contentPayload{Parts: []partPayload{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		setup.Setup.Tools = []toolPayload{{FunctionDeclarations: cfg.Tools}}
	}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	// The first inbound frame must acknowledge the setup.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("await setup ack: %w", err)
	}
	var ack serverMessage
	if err := json.Unmarshal(raw, &ack); err != nil || ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected setup response: %s", raw)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:   conn,
		logger: logger,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// Events returns the inbound event stream. The channel is closed after a
// terminal ClosedEvent.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SendAudioChunk transmits one encoded microphone frame. Frames are
// fire-and-forget; the transport queues or drops internally.
func (c *Client) SendAudioChunk(chunk string) error {
	return c.writeJSON(realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []inlineData{{MimeType: captureMimeType, Data: chunk}}},
	})
}

// SendToolResponses answers a batch of tool calls by correlation id.
func (c *Client) SendToolResponses(resps []FunctionResponse) error {
	return c.writeJSON(toolResponseMessage{ToolResponse: toolResponse{FunctionResponses: resps}})
}

func (c *Client) writeJSON(v any) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close shuts the channel down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				c.emit(ClosedEvent{})
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.emit(ClosedEvent{})
				} else {
					c.emit(ClosedEvent{Err: fmt.Errorf("read live channel: %w", err)})
				}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Printf("live: failed to parse server message: %v", err)
			continue
		}
		c.dispatch(&msg)
	}
}

// dispatch expands one server frame into events, preserving the order
// audio, transcript, tool calls, interruption.
func (c *Client) dispatch(msg *serverMessage) {
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					c.emit(AudioEvent{Data: part.InlineData.Data})
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			c.emit(TranscriptEvent{Text: sc.OutputTranscription.Text})
		}
		if sc.Interrupted {
			c.emit(InterruptedEvent{})
		}
		if sc.TurnComplete {
			c.emit(TurnCompleteEvent{})
		}
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		c.emit(ToolCallEvent{Calls: msg.ToolCall.FunctionCalls})
	}
	if msg.ToolCallCancellation != nil {
		// The dispatcher answers every call it receives, so cancellations
		// are informational only.
		c.logger.Printf("live: tool calls cancelled: %v", msg.ToolCallCancellation.IDs)
	}
}

func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	case <-c.done:
	}
}
