package store

import "time"

// SubjectName is one of the fixed supported subjects. Tool calls naming any
// other subject are ignored by the update path.
type SubjectName string

const (
	SubjectHindi           SubjectName = "Hindi"
	SubjectSST             SubjectName = "SST"
	SubjectScience         SubjectName = "Science"
	SubjectComputerScience SubjectName = "Computer Science"
	SubjectKannada         SubjectName = "Kannada"
)

// SupportedSubjects is the fixed enumeration a fresh profile is seeded with.
var SupportedSubjects = []SubjectName{
	SubjectHindi,
	SubjectSST,
	SubjectScience,
	SubjectComputerScience,
	SubjectKannada,
}

// Badge identifiers. Quick Learner and Never Give Up are recognized names
// but are not awarded by the core update path.
const (
	BadgeBeginnerScholar = "Beginner Scholar"
	BadgeTopPerformer    = "Top Performer"
	BadgeConceptMaster   = "Concept Master"
	BadgeSevenDayStreak  = "7-Day Streak"
	BadgeQuickLearner    = "Quick Learner"
	BadgeNeverGiveUp     = "Never Give Up"
)

// Award thresholds.
const (
	beginnerScholarPoints = 100
	topPerformerPoints    = 500
	conceptMasterMastery  = 90
	streakBadgeDays       = 7
)

// Concept tracks mastery of a single concept within a chapter.
type Concept struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mastery  int    `json:"mastery"` // clamped to [0, 100]
	Attempts int    `json:"attempts"`
}

// Chapter is one unit of uploaded study material.
type Chapter struct {
	Name        string              `json:"name"`
	Summary     string              `json:"summary,omitempty"`
	Content     string              `json:"content,omitempty"` // full extracted source text, may be large
	Concepts    map[string]*Concept `json:"concepts"`
	LastStudied time.Time           `json:"lastStudied"`
	Difficulty  string              `json:"difficulty,omitempty"`
}

// SubjectData holds the chapters uploaded for one subject.
type SubjectData struct {
	Chapters map[string]*Chapter `json:"chapters"`
}

// StudentProfile is the root of the persisted learning state. CurrentStreak
// is derived from ActivityLog and is rewritten on every recomputation,
// never adjusted directly.
type StudentProfile struct {
	Name          string                       `json:"name"`
	Subjects      map[SubjectName]*SubjectData `json:"subjects"`
	TotalPoints   int                          `json:"totalPoints"`
	Badges        []string                     `json:"badges"`
	CurrentStreak int                          `json:"currentStreak"`
	LastActive    time.Time                    `json:"lastActive"`
	ActivityLog   []string                     `json:"activityLog"` // sorted YYYY-MM-DD days, no duplicates
}

// GeneratedImage is one persisted visual aid. Images live in a bounded
// recency list outside the profile.
type GeneratedImage struct {
	ID        string    `json:"id"`
	Concept   string    `json:"concept"`
	Base64    string    `json:"base64"`
	CreatedAt time.Time `json:"createdAt"`
	SizeBytes int       `json:"sizeBytes"`
}

func defaultProfile(name string, now time.Time) *StudentProfile {
	subjects := make(map[SubjectName]*SubjectData, len(SupportedSubjects))
	for _, s := range SupportedSubjects {
		subjects[s] = &SubjectData{Chapters: map[string]*Chapter{}}
	}
	return &StudentProfile{
		Name:        name,
		Subjects:    subjects,
		Badges:      []string{},
		LastActive:  now,
		ActivityLog: []string{},
	}
}

// hasBadge reports whether the badge was already awarded.
func (p *StudentProfile) hasBadge(badge string) bool {
	for _, b := range p.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// awardBadge appends the badge once, preserving insertion order.
func (p *StudentProfile) awardBadge(badge string) {
	if !p.hasBadge(badge) {
		p.Badges = append(p.Badges, badge)
	}
}
