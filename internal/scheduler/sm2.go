package scheduler

import (
	"math"
	"time"
)

// Grade is the learner's self-assessed recall quality, 0 (total
// failure) to 5 (perfect recall). Anything below PassingGrade counts
// as a lapse.
type Grade int

const (
	GradeBlackout Grade = 0
	GradeWrong    Grade = 1
	GradeAlmost   Grade = 2
	GradeHard     Grade = 3
	GradeGood     Grade = 4
	GradeEasy     Grade = 5

	// PassingGrade separates successful recalls from lapses.
	PassingGrade Grade = 3
)

const (
	// MinEaseFactor is the floor under the ease factor.
	MinEaseFactor = 1.3
	// DefaultEaseFactor is the ease factor assigned to unseen cards.
	DefaultEaseFactor = 2.5
)

// State holds the scheduling inputs and outputs of a single card.
type State struct {
	EaseFactor   float64
	IntervalDays int
	Repetitions  int
	Lapses       int
}

// NewState returns the state of a card that has never been reviewed.
func NewState() State {
	return State{EaseFactor: DefaultEaseFactor}
}

// Apply computes the next scheduling state for a grade. It is pure and
// total: malformed inputs are sanitized to defaults, and every field of
// the result is finite and within its documented bounds. The caller
// derives the new due date as today + IntervalDays.
func Apply(grade Grade, s State) State {
	s = sanitize(s)
	q := clampGrade(grade)

	ef := s.EaseFactor - 0.8 + 0.28*float64(q) - 0.02*float64(q)*float64(q)
	if math.IsNaN(ef) || math.IsInf(ef, 0) || ef < MinEaseFactor {
		ef = MinEaseFactor
	}

	next := State{EaseFactor: ef, Lapses: s.Lapses}
	if q < PassingGrade {
		next.Repetitions = 0
		next.Lapses = s.Lapses + 1
		next.IntervalDays = 1
		return next
	}

	switch s.Repetitions {
	case 0:
		next.IntervalDays = 1
	case 1:
		next.IntervalDays = 6
	default:
		ivl := math.Round(float64(s.IntervalDays) * ef)
		if math.IsNaN(ivl) || math.IsInf(ivl, 0) || ivl < 1 {
			ivl = 1
		}
		next.IntervalDays = int(ivl)
	}
	next.Repetitions = s.Repetitions + 1
	return next
}

// NextDueDate returns the calendar date IntervalDays after today,
// truncated to midnight in loc.
func NextDueDate(intervalDays int, now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+intervalDays, 0, 0, 0, 0, loc)
}

// sanitize replaces non-finite or negative fields with their defaults
// so that corrupt persisted state never propagates through the
// arithmetic.
func sanitize(s State) State {
	if math.IsNaN(s.EaseFactor) || math.IsInf(s.EaseFactor, 0) || s.EaseFactor <= 0 {
		s.EaseFactor = DefaultEaseFactor
	}
	if s.IntervalDays < 0 {
		s.IntervalDays = 0
	}
	if s.Repetitions < 0 {
		s.Repetitions = 0
	}
	if s.Lapses < 0 {
		s.Lapses = 0
	}
	return s
}

func clampGrade(g Grade) Grade {
	if g < 0 {
		return 0
	}
	if g > 5 {
		return 5
	}
	return g
}
