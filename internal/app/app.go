package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"

	"github.com/shiksha-ai/shiksha/internal/eventlog"
	"github.com/shiksha-ai/shiksha/internal/imagegen"
	"github.com/shiksha-ai/shiksha/internal/ingest"
	"github.com/shiksha-ai/shiksha/internal/session"
	"github.com/shiksha-ai/shiksha/internal/store"
	"github.com/shiksha-ai/shiksha/internal/tools"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	store      *store.Store
	eventLog   *eventlog.Logger
	analyzer   *ingest.Analyzer
	dispatcher *tools.Dispatcher
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}

	st, err := store.Open(cfg.DBPath, cfg.StudentName, logger)
	if err != nil {
		return nil, err
	}
	if err := eventlog.Migrate(st.DB()); err != nil {
		st.Close()
		return nil, err
	}
	el := eventlog.New(st.DB())

	images := imagegen.NewClient(imagegen.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.ImageModel,
	})
	analyzer := ingest.NewAnalyzer(ingest.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.IngestModel,
	})

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		eventLog:   el,
		analyzer:   analyzer,
		dispatcher: tools.NewDispatcher(st, images, el, logger),
	}, nil
}

// Store exposes the profile store for direct reads (progress display).
func (a *App) Store() *store.Store {
	return a.store
}

// Dispatcher exposes the tool dispatcher so callers can attach UI callbacks.
func (a *App) Dispatcher() *tools.Dispatcher {
	return a.dispatcher
}

// NewSession creates an idle tutoring session primed with studyContext
// (empty for a general session).
func (a *App) NewSession(studyContext string) *session.Session {
	return session.New(session.Config{
		APIKey:       a.cfg.GeminiAPIKey,
		Model:        a.cfg.LiveModel,
		VoiceName:    a.cfg.VoiceName,
		StudyContext: studyContext,
	}, a.dispatcher, a.eventLog, a.logger)
}

// IngestFile analyzes a study document on disk, stores the resulting
// chapter and returns the context string for the next session.
func (a *App) IngestFile(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	result, err := a.analyzer.Analyze(ctx, mimeType, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return "", fmt.Errorf("analyze upload: %w", err)
	}
	return ingest.Apply(ctx, a.store, result)
}

func (a *App) Close() error {
	a.dispatcher.Wait()
	return a.store.Close()
}
