package domain

import "time"

// Card represents a single front-back-example vocabulary entry.
type Card struct {
	ID        int64
	UserID    int64
	Front     string
	Back      string
	Example   string
	Hash      string
	Active    bool
	CreatedAt time.Time
}

// Queue classifies a card's maturity. It is informational only: the
// scheduler never reads it.
type Queue string

const (
	QueueNew      Queue = "new"
	QueueLearning Queue = "learning"
	QueueReview   Queue = "review"
)

// MatureIntervalDays is the interval at which a learning card is
// promoted to the review queue.
const MatureIntervalDays = 21

// ReviewState holds the scheduling state of one card for one user.
type ReviewState struct {
	CardID         int64
	UserID         int64
	EaseFactor     float64
	IntervalDays   int
	Repetitions    int
	Lapses         int
	DueDate        time.Time // calendar date, time-of-day is always midnight
	Queue          Queue
	LastReviewedAt *time.Time
	LastGrade      *int
}

// ReviewLogEntry records a single grading event. Rows are append-only.
type ReviewLogEntry struct {
	CardID     int64
	UserID     int64
	ReviewedAt time.Time
	Grade      int

	EaseBefore        float64
	EaseAfter         float64
	IntervalBefore    int
	IntervalAfter     int
	RepetitionsBefore int
	RepetitionsAfter  int

	LatencyMS int64
	SessionID string
	Position  int
}
