package storage

import (
	"fmt"
	"time"
)

// UserStats summarizes one user's collection and progress.
type UserStats struct {
	TotalCards    int
	NewCards      int
	LearningCards int
	ReviewCards   int
	ReviewsToday  int
	Streak        int
}

// GetUserStats gathers collection counts, today's review count and the
// current streak for one user. today must be a midnight timestamp in
// the configured location.
func (db *DB) GetUserStats(userID int64, today time.Time) (*UserStats, error) {
	var st UserStats

	err := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN rs.queue = 'new' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN rs.queue = 'learning' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN rs.queue = 'review' THEN 1 ELSE 0 END), 0)
		FROM review_states rs
		JOIN cards c ON c.id = rs.card_id
		WHERE rs.user_id = ? AND c.active = 1
	`, userID).Scan(&st.TotalCards, &st.NewCards, &st.LearningCards, &st.ReviewCards)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards for user %d: %w", userID, err)
	}

	err = db.conn.QueryRow(`
		SELECT COUNT(*) FROM review_log
		WHERE user_id = ? AND reviewed_at >= ? AND reviewed_at < ?
	`, userID, today, today.AddDate(0, 0, 1)).Scan(&st.ReviewsToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's reviews for user %d: %w", userID, err)
	}

	streak, err := db.Streak(userID, today)
	if err != nil {
		return nil, err
	}
	st.Streak = streak

	return &st, nil
}

// Streak returns the number of consecutive calendar days, ending today
// or yesterday, on which the user graded at least one card. A day
// without reviews breaks the run; today not being reviewed yet does
// not. Day bucketing happens in Go so that the result follows the
// caller's location rather than whatever offset the rows were stored
// with.
func (db *DB) Streak(userID int64, today time.Time) (int, error) {
	rows, err := db.conn.Query(`
		SELECT reviewed_at FROM review_log
		WHERE user_id = ?
		ORDER BY reviewed_at DESC
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to query review dates for user %d: %w", userID, err)
	}
	defer rows.Close()

	loc := today.Location()
	seen := make(map[string]bool)
	var days []string
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return 0, fmt.Errorf("failed to scan review timestamp for user %d: %w", userID, err)
		}
		d := ts.In(loc).Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}

	expect := today
	if days[0] != today.Format("2006-01-02") {
		expect = today.AddDate(0, 0, -1)
	}

	streak := 0
	for _, d := range days {
		if d != expect.Format("2006-01-02") {
			break
		}
		streak++
		expect = expect.AddDate(0, 0, -1)
	}
	return streak, nil
}
