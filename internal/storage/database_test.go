package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "recall_test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func midnight(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInsertCardCreatesReviewState(t *testing.T) {
	db := openTestDB(t)
	today := midnight(2024, 1, 10)

	id, err := db.InsertCard(domain.Card{UserID: 7, Front: "la mer", Back: "the sea", Hash: "h1"}, 0, today)
	if err != nil {
		t.Fatalf("InsertCard failed: %v", err)
	}

	rs, err := db.GetReviewState(id)
	if err != nil {
		t.Fatalf("GetReviewState failed: %v", err)
	}
	if rs == nil {
		t.Fatal("expected a review state row for the new card")
	}
	if rs.EaseFactor != 2.5 {
		t.Errorf("ease factor = %v, want 2.5", rs.EaseFactor)
	}
	if rs.IntervalDays != 0 || rs.Repetitions != 0 || rs.Lapses != 0 {
		t.Errorf("new card counters not zero: %+v", rs)
	}
	if rs.Queue != domain.QueueNew {
		t.Errorf("queue = %q, want %q", rs.Queue, domain.QueueNew)
	}
	if rs.LastReviewedAt != nil || rs.LastGrade != nil {
		t.Errorf("new card has review history: %+v", rs)
	}
}

func TestFindCardByHash(t *testing.T) {
	db := openTestDB(t)
	today := midnight(2024, 1, 10)

	if _, err := db.InsertCard(domain.Card{UserID: 1, Front: "a", Back: "b", Hash: "hh"}, 0, today); err != nil {
		t.Fatalf("InsertCard failed: %v", err)
	}

	card, err := db.FindCardByHash(1, "hh")
	if err != nil {
		t.Fatalf("FindCardByHash failed: %v", err)
	}
	if card == nil || card.Front != "a" {
		t.Fatalf("unexpected card: %+v", card)
	}

	// Same hash, different user: not found.
	card, err = db.FindCardByHash(2, "hh")
	if err != nil {
		t.Fatalf("FindCardByHash failed: %v", err)
	}
	if card != nil {
		t.Fatalf("expected no card for another user, got %+v", card)
	}
}

func TestDueCardsOrdering(t *testing.T) {
	db := openTestDB(t)
	const userID = int64(3)
	today := midnight(2024, 1, 2)

	// Creation order C, A, B; A and C share a due date, B is not due yet.
	insert := func(front, hash string, created, due time.Time) int64 {
		t.Helper()
		res, err := db.conn.Exec(`
			INSERT INTO cards (user_id, front, back, hash, active, created_at)
			VALUES (?, ?, '', ?, 1, ?)
		`, userID, front, hash, created)
		if err != nil {
			t.Fatalf("insert card %s: %v", front, err)
		}
		id, _ := res.LastInsertId()
		if _, err := db.conn.Exec(`
			INSERT INTO review_states (card_id, user_id, due_date) VALUES (?, ?, ?)
		`, id, userID, due); err != nil {
			t.Fatalf("insert state %s: %v", front, err)
		}
		return id
	}

	created := midnight(2023, 12, 1)
	insert("C", "hc", created, midnight(2024, 1, 1))
	insert("A", "ha", created.Add(time.Hour), midnight(2024, 1, 1))
	insert("B", "hb", created.Add(2*time.Hour), midnight(2024, 1, 3))

	due, err := db.DueCards(userID, today, 0)
	if err != nil {
		t.Fatalf("DueCards failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due cards, got %d", len(due))
	}
	// Tie on due date broken by creation time: C was created before A.
	if due[0].Card.Front != "C" || due[1].Card.Front != "A" {
		t.Errorf("order = %s, %s; want C, A", due[0].Card.Front, due[1].Card.Front)
	}

	limited, err := db.DueCards(userID, today, 1)
	if err != nil {
		t.Fatalf("DueCards with limit failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Card.Front != "C" {
		t.Errorf("limited result = %+v, want just C", limited)
	}
}

func TestDueCardsEmptyIsNotAnError(t *testing.T) {
	db := openTestDB(t)
	due, err := db.DueCards(42, midnight(2024, 1, 1), 10)
	if err != nil {
		t.Fatalf("DueCards failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due cards, got %d", len(due))
	}
}

func TestDueCardsSkipsInactive(t *testing.T) {
	db := openTestDB(t)
	today := midnight(2024, 1, 10)

	id, err := db.InsertCard(domain.Card{UserID: 5, Front: "x", Back: "y", Hash: "hx"}, 0, today)
	if err != nil {
		t.Fatalf("InsertCard failed: %v", err)
	}
	if err := db.SetCardActive(id, false); err != nil {
		t.Fatalf("SetCardActive failed: %v", err)
	}

	due, err := db.DueCards(5, today, 0)
	if err != nil {
		t.Fatalf("DueCards failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("deactivated card still due: %+v", due)
	}
}

func TestApplyGradeWritesStateAndLogTogether(t *testing.T) {
	db := openTestDB(t)
	today := midnight(2024, 2, 1)

	id, err := db.InsertCard(domain.Card{UserID: 9, Front: "f", Back: "b", Hash: "hg"}, 0, today)
	if err != nil {
		t.Fatalf("InsertCard failed: %v", err)
	}

	now := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	grade := 4
	state := domain.ReviewState{
		CardID:         id,
		UserID:         9,
		EaseFactor:     2.6,
		IntervalDays:   1,
		Repetitions:    1,
		Lapses:         0,
		DueDate:        midnight(2024, 2, 2),
		Queue:          domain.QueueLearning,
		LastReviewedAt: &now,
		LastGrade:      &grade,
	}
	entry := domain.ReviewLogEntry{
		CardID: id, UserID: 9, ReviewedAt: now, Grade: grade,
		EaseBefore: 2.5, EaseAfter: 2.6,
		IntervalBefore: 0, IntervalAfter: 1,
		RepetitionsBefore: 0, RepetitionsAfter: 1,
		LatencyMS: 4200, SessionID: "s-1", Position: 0,
	}
	if err := db.ApplyGrade(state, entry); err != nil {
		t.Fatalf("ApplyGrade failed: %v", err)
	}

	rs, err := db.GetReviewState(id)
	if err != nil {
		t.Fatalf("GetReviewState failed: %v", err)
	}
	if rs.EaseFactor != 2.6 || rs.IntervalDays != 1 || rs.Repetitions != 1 {
		t.Errorf("state not updated: %+v", rs)
	}
	if rs.LastGrade == nil || *rs.LastGrade != 4 {
		t.Errorf("last grade not recorded: %+v", rs.LastGrade)
	}

	var logged int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM review_log WHERE card_id = ?`, id).Scan(&logged); err != nil {
		t.Fatalf("count log: %v", err)
	}
	if logged != 1 {
		t.Errorf("review_log rows = %d, want 1", logged)
	}
}

func TestApplyGradeRecreatesMissingStateRow(t *testing.T) {
	db := openTestDB(t)
	today := midnight(2024, 1, 1)

	id, err := db.InsertCard(domain.Card{UserID: 1, Front: "f", Back: "b", Hash: "hm"}, 0, today)
	if err != nil {
		t.Fatalf("InsertCard failed: %v", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM review_states WHERE card_id = ?`, id); err != nil {
		t.Fatalf("delete state row: %v", err)
	}

	state := domain.ReviewState{CardID: id, UserID: 1, EaseFactor: 2.5, IntervalDays: 1, Repetitions: 1, DueDate: midnight(2024, 1, 2), Queue: domain.QueueLearning}
	entry := domain.ReviewLogEntry{CardID: id, UserID: 1, ReviewedAt: time.Now(), Grade: 3, SessionID: "s-2"}

	if err := db.ApplyGrade(state, entry); err != nil {
		t.Fatalf("ApplyGrade failed with no pre-existing state row: %v", err)
	}

	rs, err := db.GetReviewState(id)
	if err != nil {
		t.Fatalf("GetReviewState failed: %v", err)
	}
	if rs == nil {
		t.Fatal("state row not recreated")
	}
	if rs.IntervalDays != 1 || rs.Repetitions != 1 || rs.Queue != domain.QueueLearning {
		t.Errorf("recreated state wrong: %+v", rs)
	}

	var logged int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM review_log WHERE card_id = ?`, id).Scan(&logged); err != nil {
		t.Fatalf("count log: %v", err)
	}
	if logged != 1 {
		t.Errorf("review_log rows = %d, want 1", logged)
	}
}

func TestStreak(t *testing.T) {
	db := openTestDB(t)
	const userID = int64(11)
	today := midnight(2024, 3, 10)

	logAt := func(ts time.Time) {
		t.Helper()
		if _, err := db.conn.Exec(`
			INSERT INTO review_log (card_id, user_id, reviewed_at, grade,
				ease_before, ease_after, interval_before, interval_after,
				repetitions_before, repetitions_after)
			VALUES (1, ?, ?, 4, 2.5, 2.6, 0, 1, 0, 1)
		`, userID, ts); err != nil {
			t.Fatalf("insert log: %v", err)
		}
	}

	t.Run("no reviews means no streak", func(t *testing.T) {
		streak, err := db.Streak(userID, today)
		if err != nil {
			t.Fatalf("Streak failed: %v", err)
		}
		if streak != 0 {
			t.Errorf("streak = %d, want 0", streak)
		}
	})

	// Yesterday and the day before, with a gap before that.
	logAt(today.AddDate(0, 0, -1).Add(8 * time.Hour))
	logAt(today.AddDate(0, 0, -2).Add(20 * time.Hour))
	logAt(today.AddDate(0, 0, -5))

	t.Run("run ending yesterday still counts", func(t *testing.T) {
		streak, err := db.Streak(userID, today)
		if err != nil {
			t.Fatalf("Streak failed: %v", err)
		}
		if streak != 2 {
			t.Errorf("streak = %d, want 2", streak)
		}
	})

	// Reviewing today extends the run.
	logAt(today.Add(10 * time.Hour))

	t.Run("today extends the run", func(t *testing.T) {
		streak, err := db.Streak(userID, today)
		if err != nil {
			t.Fatalf("Streak failed: %v", err)
		}
		if streak != 3 {
			t.Errorf("streak = %d, want 3", streak)
		}
	})
}
