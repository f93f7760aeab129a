package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// EventType represents the type of session event
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventTranscript     EventType = "transcript"
	EventToolCall       EventType = "tool_call"
	EventBargeIn        EventType = "barge_in"
	EventImageGenerated EventType = "image_generated"
	EventCodecError     EventType = "codec_error"
	EventSessionEnded   EventType = "session_ended"
)

// Logger provides async event logging to the database
type Logger struct {
	db *sql.DB
}

// New creates a new event logger. The handle is shared with the profile
// store; Migrate must have been called on it once.
func New(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Migrate creates the session_events table.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES (?, ?, ?)
	`, sessionID, string(eventType), string(dataJSON))

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
