package store

import (
	"sort"
	"time"
)

const dayFormat = "2006-01-02"

// dayKey renders a timestamp as a calendar-day identifier.
func dayKey(t time.Time) string {
	return t.UTC().Format(dayFormat)
}

// computeStreak returns the length of the maximal run of consecutive
// calendar days in the activity log ending at today or, when today has no
// activity yet, at yesterday. A gap at both anchors means the streak is
// broken and the result is 0.
func computeStreak(activityLog []string, today time.Time) int {
	days := make(map[string]bool, len(activityLog))
	for _, d := range activityLog {
		days[d] = true
	}

	y, m, d := today.UTC().Date()
	cursor := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if !days[dayKey(cursor)] {
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for days[dayKey(cursor)] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// touchActivity records a learning action at now: the day is appended to
// the activity log (kept sorted, no duplicates), the streak is recomputed
// wholesale and the streak badge is awarded when earned.
func (p *StudentProfile) touchActivity(now time.Time) {
	day := dayKey(now)
	found := false
	for _, d := range p.ActivityLog {
		if d == day {
			found = true
			break
		}
	}
	if !found {
		p.ActivityLog = append(p.ActivityLog, day)
		sort.Strings(p.ActivityLog)
	}

	p.CurrentStreak = computeStreak(p.ActivityLog, now)
	if p.CurrentStreak >= streakBadgeDays {
		p.awardBadge(BadgeSevenDayStreak)
	}
}
