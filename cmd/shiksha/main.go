package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/shiksha-ai/shiksha/internal/app"
	"github.com/shiksha-ai/shiksha/internal/session"
	"github.com/shiksha-ai/shiksha/internal/store"
)

func main() {
	_ = godotenv.Load()

	upload := flag.String("upload", "", "path to a study document to analyze before the session")
	flag.Parse()

	cfg := app.LoadConfigFromEnv()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: getEnvironment(),
		})
		if err != nil {
			logger.Printf("sentry init failed: %v", err)
		} else {
			logger.Printf("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		captureError(err)
		sentry.Flush(2 * time.Second)
		logger.Fatalf("init app: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	studyContext := ""
	if *upload != "" {
		logger.Printf("analyzing %s", *upload)
		studyContext, err = a.IngestFile(ctx, *upload)
		if err != nil {
			logger.Fatalf("ingest upload: %v", err)
		}
		logger.Printf("study material ready")
	}

	a.Dispatcher().OnProgress = func(p *store.StudentProfile) {
		fmt.Printf("\n⭐ %d points", p.TotalPoints)
		if p.CurrentStreak > 1 {
			fmt.Printf(" | %d-day streak", p.CurrentStreak)
		}
		fmt.Println()
	}
	a.Dispatcher().OnVisual = func(img store.GeneratedImage) {
		fmt.Printf("\n🖼  visual saved: %s (%d bytes)\n", img.Concept, img.SizeBytes)
	}

	sess := a.NewSession(studyContext)
	sess.OnState = func(s session.State) {
		logger.Printf("session: %s", s)
	}
	sess.OnTranscript = func(text string) {
		fmt.Printf("\r%s", text)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := sess.Start(dialCtx); err != nil {
		cancel()
		captureError(err)
		logger.Fatalf("start session: %v", err)
	}
	cancel()

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
		sess.Stop()
	case <-sess.Done():
	}
	<-sess.Done()

	if err := sess.Err(); err != nil {
		captureError(err)
		logger.Printf("session ended with error: %v", err)
	}
}

// captureError reports a terminal failure to sentry; a no-op when sentry
// was not initialized.
func captureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
