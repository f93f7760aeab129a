package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Fixed keys for the two persisted records. Each is written back in full on
// every mutation; there are no partial writes.
const (
	profileKey = "shiksha_student_profile"
	imagesKey  = "shiksha_generated_images"
)

// maxStoredImages caps the generated-image recency list.
const maxStoredImages = 20

// Store is the single source of truth for the student profile and the
// generated-image list. All mutation goes through its methods; a mutex
// makes every read see the latest write with no staleness window.
type Store struct {
	db      *sql.DB
	logger  *log.Logger
	student string

	mu      sync.Mutex
	now     func() time.Time
	entropy *rand.Rand
}

// Open opens (or creates) the SQLite database at dbPath. studentName seeds
// the profile created lazily on first read.
func Open(dbPath, studentName string, logger *log.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  logger,
		student: studentName,
		now:     time.Now,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// DB exposes the underlying handle so sibling components (the session event
// log) can share the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProfile returns the persisted profile, creating one with defaults on
// first read. A record that fails to parse is replaced by a fresh default
// rather than surfaced as an error.
func (s *Store) GetProfile(ctx context.Context) *StudentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadProfile(ctx)
}

// SaveProfile writes the profile back in full.
func (s *Store) SaveProfile(ctx context.Context, p *StudentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProfile(ctx, p)
}

// SaveChapter saves or replaces a chapter under the subject. Concepts from
// a previous upload of the same chapter survive re-ingestion; the chapter's
// lastStudied and the profile's activity log are refreshed.
func (s *Store) SaveChapter(ctx context.Context, subject SubjectName, name, summary, content, difficulty string) error {
	if difficulty == "" {
		difficulty = "Normal"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := s.loadProfile(ctx)
	data := p.subjectData(subject)

	chapter := &Chapter{
		Name:        name,
		Summary:     summary,
		Content:     content,
		Difficulty:  difficulty,
		Concepts:    map[string]*Concept{},
		LastStudied: now,
	}
	if existing, ok := data.Chapters[name]; ok {
		chapter.Concepts = existing.Concepts
	}
	data.Chapters[name] = chapter

	p.LastActive = now
	p.touchActivity(now)
	return s.saveProfile(ctx, p)
}

// DeleteChapter removes a chapter. Deleting a chapter that does not exist
// is a no-op.
func (s *Store) DeleteChapter(ctx context.Context, subject SubjectName, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.loadProfile(ctx)
	data, ok := p.Subjects[subject]
	if !ok {
		return nil
	}
	if _, ok := data.Chapters[name]; !ok {
		return nil
	}
	delete(data.Chapters, name)
	return s.saveProfile(ctx, p)
}

// UpdatePointsAndMastery applies one progress-update tool call: points are
// always added and the activity log refreshed; when conceptName is set the
// concept's attempts are incremented in the subject's most recently studied
// chapter (a "General" chapter is created when the subject has none), and
// mastery is raised by masteryIncrease clamped at 100 when provided.
// Point and mastery thresholds award badges, each at most once.
func (s *Store) UpdatePointsAndMastery(ctx context.Context, subject SubjectName, points int, conceptName string, masteryIncrease *int) (*StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := s.loadProfile(ctx)

	p.TotalPoints += points
	p.LastActive = now
	p.touchActivity(now)

	if p.TotalPoints > beginnerScholarPoints {
		p.awardBadge(BadgeBeginnerScholar)
	}
	if p.TotalPoints > topPerformerPoints {
		p.awardBadge(BadgeTopPerformer)
	}

	if conceptName != "" {
		data := p.subjectData(subject)
		chapter := data.currentChapter(now)

		concept, ok := chapter.Concepts[conceptName]
		if !ok {
			concept = &Concept{ID: conceptName, Name: conceptName}
			chapter.Concepts[conceptName] = concept
		}
		concept.Attempts++
		if masteryIncrease != nil {
			concept.Mastery += *masteryIncrease
			if concept.Mastery > 100 {
				concept.Mastery = 100
			}
		}
		if concept.Mastery >= conceptMasterMastery {
			p.awardBadge(BadgeConceptMaster)
		}
	}

	if err := s.saveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// subjectData returns the SubjectData for subject, creating it for subjects
// missing from an older persisted profile.
func (p *StudentProfile) subjectData(subject SubjectName) *SubjectData {
	if p.Subjects == nil {
		p.Subjects = map[SubjectName]*SubjectData{}
	}
	data, ok := p.Subjects[subject]
	if !ok {
		data = &SubjectData{Chapters: map[string]*Chapter{}}
		p.Subjects[subject] = data
	}
	if data.Chapters == nil {
		data.Chapters = map[string]*Chapter{}
	}
	return data
}

// currentChapter picks the most recently studied chapter as the target for
// mastery updates. A subject with no chapters yet gets a default "General"
// chapter; this is a deliberate policy branch, not an incidental fallback.
func (d *SubjectData) currentChapter(now time.Time) *Chapter {
	if len(d.Chapters) == 0 {
		general := &Chapter{Name: "General", Concepts: map[string]*Concept{}, LastStudied: now}
		d.Chapters["General"] = general
		return general
	}
	var latest *Chapter
	for _, c := range d.Chapters {
		if latest == nil || c.LastStudied.After(latest.LastStudied) {
			latest = c
		}
	}
	if latest.Concepts == nil {
		latest.Concepts = map[string]*Concept{}
	}
	return latest
}

// ListImages returns the stored images, newest first. A corrupt record
// yields an empty list.
func (s *Store) ListImages(ctx context.Context) []GeneratedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadImages(ctx)
}

// SaveImage persists a generated visual at the front of the recency list,
// evicting the oldest entry beyond the cap.
func (s *Store) SaveImage(ctx context.Context, concept, base64Data string) (GeneratedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := GeneratedImage{
		ID:        ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String(),
		Concept:   concept,
		Base64:    base64Data,
		CreatedAt: s.now(),
		SizeBytes: len(base64Data),
	}

	images := append([]GeneratedImage{img}, s.loadImages(ctx)...)
	if len(images) > maxStoredImages {
		images = images[:maxStoredImages]
	}
	if err := s.saveImages(ctx, images); err != nil {
		return GeneratedImage{}, err
	}
	return img, nil
}

// ClearImages drops the whole image list.
func (s *Store) ClearImages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, imagesKey)
	return err
}

// StorageUsage reports the summed payload size and count of stored images.
func (s *Store) StorageUsage(ctx context.Context) (usedBytes, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	images := s.loadImages(ctx)
	for _, img := range images {
		usedBytes += img.SizeBytes
	}
	return usedBytes, len(images)
}

func (s *Store) loadProfile(ctx context.Context) *StudentProfile {
	raw, ok := s.getKV(ctx, profileKey)
	if !ok {
		return defaultProfile(s.student, s.now())
	}
	var p StudentProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Printf("store: profile record corrupt, starting fresh: %v", err)
		return defaultProfile(s.student, s.now())
	}
	for _, subject := range SupportedSubjects {
		p.subjectData(subject)
	}
	if p.ActivityLog == nil {
		p.ActivityLog = []string{}
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	return &p
}

func (s *Store) saveProfile(ctx context.Context, p *StudentProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return s.putKV(ctx, profileKey, string(raw))
}

func (s *Store) loadImages(ctx context.Context) []GeneratedImage {
	raw, ok := s.getKV(ctx, imagesKey)
	if !ok {
		return nil
	}
	var images []GeneratedImage
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		s.logger.Printf("store: image record corrupt, starting fresh: %v", err)
		return nil
	}
	return images
}

func (s *Store) saveImages(ctx context.Context, images []GeneratedImage) error {
	raw, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	return s.putKV(ctx, imagesKey, string(raw))
}

func (s *Store) getKV(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logger.Printf("store: read %s: %v", key, err)
		return "", false
	}
	return value, true
}

func (s *Store) putKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
