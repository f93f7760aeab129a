package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore opens a store on a throwaway database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "shiksha.db"), "Saachi", log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func TestGetProfileLazyDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := s.GetProfile(ctx)
	if p.Name != "Saachi" {
		t.Errorf("profile name = %q, want Saachi", p.Name)
	}
	if got := len(p.Subjects); got != len(SupportedSubjects) {
		t.Errorf("subject count = %d, want %d", got, len(SupportedSubjects))
	}
	if p.TotalPoints != 0 || p.CurrentStreak != 0 {
		t.Errorf("fresh profile has points=%d streak=%d, want zeros", p.TotalPoints, p.CurrentStreak)
	}
}

func TestCorruptProfileFallsBackToDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.putKV(ctx, profileKey, "{definitely not json"); err != nil {
		t.Fatalf("putKV failed: %v", err)
	}

	p := s.GetProfile(ctx)
	if p.Name != "Saachi" || p.TotalPoints != 0 {
		t.Errorf("corrupt record did not fall back to defaults: %+v", p)
	}
}

func TestProfilePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shiksha.db")
	logger := log.New(os.Stderr, "", 0)
	ctx := context.Background()

	s, err := Open(path, "Saachi", logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 25, "", nil); err != nil {
		t.Fatalf("UpdatePointsAndMastery failed: %v", err)
	}
	s.Close()

	s2, err := Open(path, "Saachi", logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	if got := s2.GetProfile(ctx).TotalPoints; got != 25 {
		t.Errorf("points after reopen = %d, want 25", got)
	}
}

func TestUpdatePointsAndMasteryCreatesGeneralChapter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 10, "Photosynthesis", intPtr(10))
	if err != nil {
		t.Fatalf("UpdatePointsAndMastery failed: %v", err)
	}

	if p.TotalPoints != 10 {
		t.Errorf("total points = %d, want 10", p.TotalPoints)
	}
	chapter, ok := p.Subjects[SubjectScience].Chapters["General"]
	if !ok {
		t.Fatal("General chapter was not created for an empty subject")
	}
	concept, ok := chapter.Concepts["Photosynthesis"]
	if !ok {
		t.Fatal("concept was not created")
	}
	if concept.Mastery != 10 {
		t.Errorf("mastery = %d, want 10", concept.Mastery)
	}
	if concept.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", concept.Attempts)
	}
}

func TestUpdateTargetsMostRecentChapter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.SaveChapter(ctx, SubjectScience, "Plants", "about plants", "", ""); err != nil {
		t.Fatalf("SaveChapter failed: %v", err)
	}
	s.now = func() time.Time { return base.Add(time.Hour) }
	if err := s.SaveChapter(ctx, SubjectScience, "Water Cycle", "about water", "", ""); err != nil {
		t.Fatalf("SaveChapter failed: %v", err)
	}
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	p, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 10, "Evaporation", intPtr(20))
	if err != nil {
		t.Fatalf("UpdatePointsAndMastery failed: %v", err)
	}

	chapters := p.Subjects[SubjectScience].Chapters
	if _, ok := chapters["Water Cycle"].Concepts["Evaporation"]; !ok {
		t.Error("concept should land in the most recently studied chapter")
	}
	if _, ok := chapters["Plants"].Concepts["Evaporation"]; ok {
		t.Error("concept must not land in the older chapter")
	}
}

func TestMasteryClampsAtHundred(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 10, "Gravity", intPtr(95)); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	p, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 10, "Gravity", intPtr(20))
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	concept := p.Subjects[SubjectScience].Chapters["General"].Concepts["Gravity"]
	if concept.Mastery != 100 {
		t.Errorf("mastery = %d, want 100 (clamped)", concept.Mastery)
	}
	if concept.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", concept.Attempts)
	}
}

func TestAttemptsIncrementWithoutMasteryIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpdatePointsAndMastery(ctx, SubjectHindi, 5, "Vocabulary", nil)
	if err != nil {
		t.Fatalf("UpdatePointsAndMastery failed: %v", err)
	}

	concept := p.Subjects[SubjectHindi].Chapters["General"].Concepts["Vocabulary"]
	if concept.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", concept.Attempts)
	}
	if concept.Mastery != 0 {
		t.Errorf("mastery = %d, want 0 (no increase provided)", concept.Mastery)
	}
}

func TestPointsBadgeAwardedExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two updates of 60 points each cross the 100-point threshold twice.
	if _, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 60, "", nil); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	p, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 60, "", nil)
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	count := 0
	for _, b := range p.Badges {
		if b == BadgeBeginnerScholar {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Beginner Scholar appears %d times, want 1", count)
	}
}

func TestTopPerformerAndConceptMasterBadges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 600, "Photosynthesis", intPtr(95))
	if err != nil {
		t.Fatalf("UpdatePointsAndMastery failed: %v", err)
	}

	for _, want := range []string{BadgeBeginnerScholar, BadgeTopPerformer, BadgeConceptMaster} {
		if !p.hasBadge(want) {
			t.Errorf("badge %q missing from %v", want, p.Badges)
		}
	}
}

func TestSaveChapterPreservesConceptsOnReupload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveChapter(ctx, SubjectScience, "Plants", "v1 summary", "v1 text", "Easy"); err != nil {
		t.Fatalf("SaveChapter failed: %v", err)
	}
	if _, err := s.UpdatePointsAndMastery(ctx, SubjectScience, 10, "Roots", intPtr(40)); err != nil {
		t.Fatalf("UpdatePointsAndMastery failed: %v", err)
	}
	if err := s.SaveChapter(ctx, SubjectScience, "Plants", "v2 summary", "v2 text", "Medium"); err != nil {
		t.Fatalf("re-upload failed: %v", err)
	}

	chapter := s.GetProfile(ctx).Subjects[SubjectScience].Chapters["Plants"]
	if chapter.Summary != "v2 summary" || chapter.Content != "v2 text" || chapter.Difficulty != "Medium" {
		t.Errorf("chapter metadata not replaced: %+v", chapter)
	}
	if concept, ok := chapter.Concepts["Roots"]; !ok || concept.Mastery != 40 {
		t.Errorf("existing concepts were not preserved: %+v", chapter.Concepts)
	}
}

func TestDeleteChapter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveChapter(ctx, SubjectSST, "Maps", "", "", ""); err != nil {
		t.Fatalf("SaveChapter failed: %v", err)
	}
	if err := s.DeleteChapter(ctx, SubjectSST, "Maps"); err != nil {
		t.Fatalf("DeleteChapter failed: %v", err)
	}
	if _, ok := s.GetProfile(ctx).Subjects[SubjectSST].Chapters["Maps"]; ok {
		t.Error("chapter still present after delete")
	}

	// Deleting again is a no-op, not an error.
	if err := s.DeleteChapter(ctx, SubjectSST, "Maps"); err != nil {
		t.Errorf("deleting a missing chapter = %v, want nil", err)
	}
}

func TestImageEviction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < maxStoredImages+1; i++ {
		if _, err := s.SaveImage(ctx, fmt.Sprintf("concept-%d", i), "payload"); err != nil {
			t.Fatalf("SaveImage %d failed: %v", i, err)
		}
	}

	images := s.ListImages(ctx)
	if len(images) != maxStoredImages {
		t.Fatalf("image count = %d, want %d", len(images), maxStoredImages)
	}
	if images[0].Concept != fmt.Sprintf("concept-%d", maxStoredImages) {
		t.Errorf("newest image = %q, want concept-%d at the front", images[0].Concept, maxStoredImages)
	}
	for _, img := range images {
		if img.Concept == "concept-0" {
			t.Error("oldest image was not evicted")
		}
	}
}

func TestStorageUsageAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveImage(ctx, "Photosynthesis", "abcd"); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if _, err := s.SaveImage(ctx, "Solar System", "efghij"); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}

	used, count := s.StorageUsage(ctx)
	if used != 10 || count != 2 {
		t.Errorf("StorageUsage = (%d, %d), want (10, 2)", used, count)
	}

	if err := s.ClearImages(ctx); err != nil {
		t.Fatalf("ClearImages failed: %v", err)
	}
	if got := len(s.ListImages(ctx)); got != 0 {
		t.Errorf("image count after clear = %d, want 0", got)
	}
}
