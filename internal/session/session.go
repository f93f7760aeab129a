package session

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shiksha-ai/shiksha/internal/audio"
	"github.com/shiksha-ai/shiksha/internal/eventlog"
	"github.com/shiksha-ai/shiksha/internal/live"
	"github.com/shiksha-ai/shiksha/internal/tools"
)

// State is the session lifecycle phase reported to the UI callback.
type State string

const (
	StateIdle         State = "Idle"
	StateConnecting   State = "Connecting"
	StateActive       State = "Active"
	StateDisconnected State = "Disconnected"
	StateError        State = "Error"
)

// CaptureSource is the microphone abstraction; audio.Capture is the real
// implementation.
type CaptureSource interface {
	Start(onFrame audio.FrameFunc) error
	Close()
}

// Config describes one tutoring session.
type Config struct {
	APIKey       string
	Model        string
	VoiceName    string
	StudyContext string // from ingest.Apply, empty for a general session

	// BaseURL overrides the live API endpoint, used by tests.
	BaseURL string
}

// Session drives one voice conversation: the microphone feeds the live
// channel, inbound audio goes through the playback scheduler, and in-band
// tool calls are answered by the dispatcher. Exactly one session may hold
// the audio devices at a time.
type Session struct {
	cfg        Config
	dispatcher *tools.Dispatcher
	events     *eventlog.Logger
	logger     *log.Logger

	// OnState and OnTranscript may be nil. OnTranscript receives the full
	// current transcription, not deltas.
	OnState      func(State)
	OnTranscript func(string)

	// Factories for the audio endpoints, replaced in tests.
	newCapture func() (CaptureSource, error)
	newSink    func() (audio.Sink, error)

	mu       sync.Mutex
	state    State
	id       string
	lastErr  error
	client   *live.Client
	capture  CaptureSource
	schedule *audio.Scheduler

	stopOnce sync.Once
	done     chan struct{}
}

// New creates an idle session. Start begins the conversation.
func New(cfg Config, dispatcher *tools.Dispatcher, events *eventlog.Logger, logger *log.Logger) *Session {
	s := &Session{
		cfg:        cfg,
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
		state:      StateIdle,
		done:       make(chan struct{}),
	}
	s.newCapture = func() (CaptureSource, error) { return audio.NewCapture(logger) }
	s.newSink = func() (audio.Sink, error) { return audio.NewSpeaker(audio.PlaybackSampleRate) }
	return s
}

// ID returns the session identifier, set once Start succeeds.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that ended the session, nil for a clean close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start claims the microphone, opens the live channel and begins streaming.
// The microphone is checked before dialing so a denied permission never
// leaves a half-open channel behind.
func (s *Session) Start(ctx context.Context) error {
	s.setState(StateConnecting)

	capture, err := s.newCapture()
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("claim microphone: %w", err)
	}

	client, err := live.Dial(ctx, live.Config{
		APIKey:            s.cfg.APIKey,
		Model:             s.cfg.Model,
		SystemInstruction: BuildSystemInstruction(s.cfg.StudyContext),
		VoiceName:         s.cfg.VoiceName,
		Tools:             tools.Declarations(),
		BaseURL:           s.cfg.BaseURL,
	}, s.logger)
	if err != nil {
		capture.Close()
		s.setState(StateError)
		return fmt.Errorf("open live channel: %w", err)
	}

	sink, err := s.newSink()
	if err != nil {
		capture.Close()
		client.Close()
		s.setState(StateError)
		return fmt.Errorf("open speaker: %w", err)
	}

	id := ulid.MustNew(ulid.Now(), rand.New(rand.NewSource(time.Now().UnixNano()))).String()

	s.mu.Lock()
	s.id = id
	s.client = client
	s.capture = capture
	s.schedule = audio.NewScheduler(sink)
	s.mu.Unlock()

	s.events.LogAsync(id, eventlog.EventSessionStarted, map[string]any{
		"model": s.cfg.Model,
		"voice": s.cfg.VoiceName,
	})

	if err := capture.Start(func(chunk string) {
		if err := client.SendAudioChunk(chunk); err != nil && err != live.ErrChannelClosed {
			s.logger.Printf("session: send audio chunk: %v", err)
		}
	}); err != nil {
		err = fmt.Errorf("start microphone: %w", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.teardown(StateError)
		return err
	}

	s.setState(StateActive)
	go s.run()
	return nil
}

// run consumes the live event stream until the channel closes.
func (s *Session) run() {
	for event := range s.client.Events() {
		switch e := event.(type) {
		case live.AudioEvent:
			if err := s.schedule.ScheduleChunk(e.Data); err != nil {
				s.logger.Printf("session: dropping malformed audio chunk: %v", err)
				s.events.LogAsync(s.ID(), eventlog.EventCodecError, map[string]any{"error": err.Error()})
			}
		case live.TranscriptEvent:
			if s.OnTranscript != nil {
				s.OnTranscript(e.Text)
			}
			s.events.LogAsync(s.ID(), eventlog.EventTranscript, map[string]any{"text": e.Text})
		case live.InterruptedEvent:
			s.schedule.Interrupt()
			s.events.LogAsync(s.ID(), eventlog.EventBargeIn, nil)
		case live.TurnCompleteEvent:
			// Nothing to do; the transcript callback already carries the
			// full text.
		case live.ToolCallEvent:
			responses := s.dispatcher.Dispatch(context.Background(), s.ID(), e.Calls)
			if err := s.client.SendToolResponses(responses); err != nil && err != live.ErrChannelClosed {
				s.logger.Printf("session: send tool responses: %v", err)
			}
		case live.ClosedEvent:
			if e.Err != nil {
				s.logger.Printf("session: live channel failed: %v", e.Err)
				s.mu.Lock()
				s.lastErr = e.Err
				s.mu.Unlock()
				s.teardown(StateError)
			} else {
				s.teardown(StateDisconnected)
			}
		}
	}
}

// Stop ends the session. The microphone is released before the channel
// closes so no frame is sent into a dead connection. Safe to call more
// than once, and a no-op for a session that never started.
func (s *Session) Stop() {
	s.teardown(StateDisconnected)
}

// Done is closed once every session resource has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) teardown(final State) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		capture := s.capture
		client := s.client
		schedule := s.schedule
		id := s.id
		// A terminal error is never downgraded: Stop after a failed Start
		// keeps the Error state.
		if s.state == StateError {
			final = StateError
		}
		s.mu.Unlock()

		if capture != nil {
			capture.Close()
		}
		if client != nil {
			client.Close()
		}
		if schedule != nil {
			if err := schedule.Close(); err != nil {
				s.logger.Printf("session: close playback: %v", err)
			}
		}
		s.dispatcher.Wait()

		s.events.LogAsync(id, eventlog.EventSessionEnded, nil)
		s.setState(final)
		close(s.done)
	})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	callback := s.OnState
	s.mu.Unlock()

	if callback != nil {
		callback(state)
	}
}
