package storage

const schema = `
-- The 'cards' table stores the content of each flashcard. Cards are
-- deduplicated per user by the content hash; sync deactivates cards
-- that disappear from their source instead of deleting them.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    example TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    source_id INTEGER,
    created_at DATETIME NOT NULL,

    UNIQUE(user_id, hash),
    FOREIGN KEY(source_id) REFERENCES sources(id)
);

-- One scheduling row per card. due_date always holds a midnight
-- timestamp; interval_days is 0 until the first review.
CREATE TABLE IF NOT EXISTS review_states (
    card_id INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    due_date DATETIME NOT NULL,
    queue TEXT NOT NULL DEFAULT 'new', -- new, learning, review
    last_reviewed_at DATETIME,
    last_grade INTEGER,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);

CREATE INDEX IF NOT EXISTS idx_review_states_due ON review_states(user_id, due_date);

-- Append-only grading log. Rows are never updated or deleted; the
-- statistics queries read from here.
CREATE TABLE IF NOT EXISTS review_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL,
    grade INTEGER NOT NULL,
    ease_before REAL NOT NULL,
    ease_after REAL NOT NULL,
    interval_before INTEGER NOT NULL,
    interval_after INTEGER NOT NULL,
    repetitions_before INTEGER NOT NULL,
    repetitions_after INTEGER NOT NULL,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    session_id TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_review_log_user ON review_log(user_id, reviewed_at);

-- The 'sources' table tracks where a user's decks come from, either a
-- local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL, -- local, git
    last_scanned DATETIME,

    UNIQUE(user_id, path)
);
`
