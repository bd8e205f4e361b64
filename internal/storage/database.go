package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the underlying connection for stores that own their own
// tables on the same database file.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// InsertCard inserts a new card together with its initial scheduling
// state: ease 2.5, interval 0, due today, queue 'new'. Both rows are
// written in one transaction.
func (db *DB) InsertCard(card domain.Card, sourceID int64, today time.Time) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO cards (user_id, front, back, example, hash, active, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`,
		card.UserID,
		card.Front,
		card.Back,
		card.Example,
		card.Hash,
		sourceID,
		time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	cardID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get card ID for %s: %w", card.Hash, err)
	}

	_, err = tx.Exec(`
		INSERT INTO review_states (card_id, user_id, ease_factor, interval_days, repetitions, lapses, due_date, queue)
		VALUES (?, ?, 2.5, 0, 0, 0, ?, 'new')
	`, cardID, card.UserID, today)
	if err != nil {
		return 0, fmt.Errorf("failed to insert review state for card %s: %w", card.Hash, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit card insert: %w", err)
	}
	return cardID, nil
}

// GetCard retrieves a card by ID, active or not.
func (db *DB) GetCard(id int64) (*domain.Card, error) {
	var c domain.Card
	row := db.conn.QueryRow(`
		SELECT id, user_id, front, back, example, hash, active, created_at
		FROM cards WHERE id = ?
	`, id)

	err := row.Scan(&c.ID, &c.UserID, &c.Front, &c.Back, &c.Example, &c.Hash, &c.Active, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return &c, nil
}

// FindCardByHash retrieves a user's card by its content hash.
func (db *DB) FindCardByHash(userID int64, hash string) (*domain.Card, error) {
	var c domain.Card
	row := db.conn.QueryRow(`
		SELECT id, user_id, front, back, example, hash, active, created_at
		FROM cards WHERE user_id = ? AND hash = ?
	`, userID, hash)

	err := row.Scan(&c.ID, &c.UserID, &c.Front, &c.Back, &c.Example, &c.Hash, &c.Active, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return &c, nil
}

// SetCardActive flips a card's active flag. Deactivated cards keep
// their scheduling state and log history.
func (db *DB) SetCardActive(cardID int64, active bool) error {
	_, err := db.conn.Exec(`UPDATE cards SET active = ? WHERE id = ?`, active, cardID)
	if err != nil {
		return fmt.Errorf("failed to set active=%v for card %d: %w", active, cardID, err)
	}
	return nil
}

// GetCardsBySourceID retrieves all cards associated with a source.
func (db *DB) GetCardsBySourceID(sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, front, back, example, hash, active, created_at
		FROM cards WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.Front, &c.Back, &c.Example, &c.Hash, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetReviewState retrieves a card's scheduling state.
func (db *DB) GetReviewState(cardID int64) (*domain.ReviewState, error) {
	var rs domain.ReviewState
	var lastReviewed sql.NullTime
	var lastGrade sql.NullInt64
	row := db.conn.QueryRow(`
		SELECT card_id, user_id, ease_factor, interval_days, repetitions, lapses, due_date, queue, last_reviewed_at, last_grade
		FROM review_states WHERE card_id = ?
	`, cardID)

	err := row.Scan(&rs.CardID, &rs.UserID, &rs.EaseFactor, &rs.IntervalDays, &rs.Repetitions,
		&rs.Lapses, &rs.DueDate, &rs.Queue, &lastReviewed, &lastGrade)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get review state for card %d: %w", cardID, err)
	}
	if lastReviewed.Valid {
		rs.LastReviewedAt = &lastReviewed.Time
	}
	if lastGrade.Valid {
		g := int(lastGrade.Int64)
		rs.LastGrade = &g
	}
	return &rs, nil
}

// DueCard pairs a card's content with its scheduling state for the
// session snapshot.
type DueCard struct {
	Card  domain.Card
	State domain.ReviewState
}

// DueCards returns the user's active cards due on or before today,
// ordered by due date ascending with ties broken by card creation time
// (oldest first). limit <= 0 means no limit. An empty result is
// normal, not an error.
func (db *DB) DueCards(userID int64, today time.Time, limit int) ([]DueCard, error) {
	if limit <= 0 {
		limit = -1 // sqlite: negative LIMIT means unlimited
	}
	rows, err := db.conn.Query(`
		SELECT c.id, c.user_id, c.front, c.back, c.example, c.hash, c.active, c.created_at,
		       rs.ease_factor, rs.interval_days, rs.repetitions, rs.lapses, rs.due_date, rs.queue
		FROM review_states rs
		JOIN cards c ON c.id = rs.card_id
		WHERE rs.user_id = ? AND c.active = 1 AND rs.due_date <= ?
		ORDER BY rs.due_date ASC, c.created_at ASC, c.id ASC
		LIMIT ?
	`, userID, today, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due cards for user %d: %w", userID, err)
	}
	defer rows.Close()

	var due []DueCard
	for rows.Next() {
		var dc DueCard
		if err := rows.Scan(
			&dc.Card.ID, &dc.Card.UserID, &dc.Card.Front, &dc.Card.Back, &dc.Card.Example,
			&dc.Card.Hash, &dc.Card.Active, &dc.Card.CreatedAt,
			&dc.State.EaseFactor, &dc.State.IntervalDays, &dc.State.Repetitions,
			&dc.State.Lapses, &dc.State.DueDate, &dc.State.Queue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan due card row for user %d: %w", userID, err)
		}
		dc.State.CardID = dc.Card.ID
		dc.State.UserID = dc.Card.UserID
		due = append(due, dc)
	}
	return due, rows.Err()
}

// CountDue returns how many of the user's active cards are due today.
func (db *DB) CountDue(userID int64, today time.Time) (int, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM review_states rs
		JOIN cards c ON c.id = rs.card_id
		WHERE rs.user_id = ? AND c.active = 1 AND rs.due_date <= ?
	`, userID, today).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due cards for user %d: %w", userID, err)
	}
	return n, nil
}

// ApplyGrade persists one grading event: the review_states write and
// the review_log append happen in a single transaction, so either both
// are visible afterwards or neither is. The state write is an upsert:
// a card whose scheduling row went missing gets one back rather than
// failing the grade.
func (db *DB) ApplyGrade(state domain.ReviewState, entry domain.ReviewLogEntry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin grade transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO review_states (card_id, user_id, ease_factor, interval_days,
			repetitions, lapses, due_date, queue, last_reviewed_at, last_grade)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id) DO UPDATE SET
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			repetitions = excluded.repetitions,
			lapses = excluded.lapses,
			due_date = excluded.due_date,
			queue = excluded.queue,
			last_reviewed_at = excluded.last_reviewed_at,
			last_grade = excluded.last_grade
	`,
		state.CardID,
		state.UserID,
		state.EaseFactor,
		state.IntervalDays,
		state.Repetitions,
		state.Lapses,
		state.DueDate,
		state.Queue,
		state.LastReviewedAt,
		state.LastGrade,
	)
	if err != nil {
		return fmt.Errorf("failed to write review state for card %d: %w", state.CardID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO review_log (card_id, user_id, reviewed_at, grade,
			ease_before, ease_after, interval_before, interval_after,
			repetitions_before, repetitions_after, latency_ms, session_id, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.CardID,
		entry.UserID,
		entry.ReviewedAt,
		entry.Grade,
		entry.EaseBefore,
		entry.EaseAfter,
		entry.IntervalBefore,
		entry.IntervalAfter,
		entry.RepetitionsBefore,
		entry.RepetitionsAfter,
		entry.LatencyMS,
		entry.SessionID,
		entry.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to append review log for card %d: %w", entry.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grade for card %d: %w", state.CardID, err)
	}
	return nil
}

// Source represents a deck source, either a local path or a git URL.
type Source struct {
	ID          int64
	UserID      int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new deck source for a user and returns its ID.
func (db *DB) InsertSource(userID int64, path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (user_id, path, type)
		VALUES (?, ?, ?)
	`, userID, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a user's source by its path.
func (db *DB) FindSourceByPath(userID int64, path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ? AND path = ?
	`, userID, path)

	err := row.Scan(&s.ID, &s.UserID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves every stored source across users.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, path, type, last_scanned
		FROM sources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.UserID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// GetSourcesByUser retrieves all of one user's sources.
func (db *DB) GetSourcesByUser(userID int64) ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources for user %d: %w", userID, err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.UserID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}
