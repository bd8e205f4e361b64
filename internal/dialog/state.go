// Package dialog stores per-user conversation state: which multi-turn
// flow a user is in, which step of it, and the flow's serialized
// payload. The review session is the only mode defined in this repo;
// sibling flows register their own mode tags and payloads.
package dialog

import (
	"encoding/json"
	"time"
)

// ModeReviewSession tags conversation state owned by the review
// session state machine.
const ModeReviewSession = "review_session"

// Expiry is the inactivity window after which a conversation state is
// treated as already terminated.
const Expiry = 5 * time.Minute

// State is the durable envelope for one user's active flow.
type State struct {
	Mode            string          `json:"mode"`
	Step            int             `json:"step"`
	Data            json.RawMessage `json:"data"`
	LastMessageTime int64           `json:"lastMessageTime"` // epoch millis
}

// Expired reports whether the state has been idle past the expiry
// window at the given moment.
func (s *State) Expired(now time.Time) bool {
	last := time.UnixMilli(s.LastMessageTime)
	return now.Sub(last) > Expiry
}

// Touch stamps the state with the given moment as its last activity.
func (s *State) Touch(now time.Time) {
	s.LastMessageTime = now.UnixMilli()
}
