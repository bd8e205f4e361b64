// Package review implements the graded recall session: a resumable
// two-step conversation that presents due cards one at a time,
// classifies the learner's attempt, collects a self-graded quality
// score and feeds it to the scheduler.
package review

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/recall/internal/dialog"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/scheduler"
	"github.com/conorfennell/recall/internal/storage"
)

// Steps of the conversation: 1 awaits an attempt or a reveal, 2 awaits
// the grade.
const (
	stepAttempt = 1
	stepGrade   = 2
)

// ReviewStore is the slice of the persistence layer the session needs.
// *storage.DB satisfies it.
type ReviewStore interface {
	DueCards(userID int64, today time.Time, limit int) ([]storage.DueCard, error)
	GetCard(id int64) (*domain.Card, error)
	GetReviewState(cardID int64) (*domain.ReviewState, error)
	ApplyGrade(state domain.ReviewState, entry domain.ReviewLogEntry) error
	Streak(userID int64, today time.Time) (int, error)
}

// StateStore persists the conversation envelope. *dialog.Store
// satisfies it.
type StateStore interface {
	Get(userID int64, now time.Time) (*dialog.State, bool, error)
	Save(userID int64, st *dialog.State, now time.Time) error
	Delete(userID int64) error
}

// SessionCard is one entry of the session snapshot.
type SessionCard struct {
	CardID int64  `json:"cardId"`
	Front  string `json:"front"`
}

// Session is the transient payload carried inside the conversation
// state. It is rewritten wholesale on every turn.
type Session struct {
	SessionID      string        `json:"sessionId"`
	Current        SessionCard   `json:"currentCard"`
	Index          int           `json:"currentIndex"`
	TotalCards     int           `json:"totalCards"`
	Cards          []SessionCard `json:"allCards"`
	PresentedAt    int64         `json:"startTime"` // epoch millis, when the current card was shown
	CorrectCount   int           `json:"correctCount"`
	IncorrectCount int           `json:"incorrectCount"`
	StartedAt      int64         `json:"sessionStart"` // epoch millis
	CorrectStreak  int           `json:"correctStreak"`
	Attempts       int           `json:"attempts"` // attempts at the current card
	Hints          int           `json:"hints"`    // reveals of the current card
}

// Button describes one inline keyboard button for the transport layer.
type Button struct {
	Label string
	Data  string
}

// Reply is the transport-agnostic description of the bot's response to
// one turn.
type Reply struct {
	Text    string
	Buttons [][]Button
}

// Engine drives review sessions. It holds no per-user state: every
// turn reads one conversation-state value, computes the next one and
// writes it back.
type Engine struct {
	store  ReviewStore
	states StateStore
	loc    *time.Location
	batch  int

	clock func() time.Time
}

// NewEngine creates a session engine. batch caps how many due cards a
// session snapshot takes; <= 0 means no cap.
func NewEngine(store ReviewStore, states StateStore, loc *time.Location, batch int) *Engine {
	return &Engine{
		store:  store,
		states: states,
		loc:    loc,
		batch:  batch,
		clock:  time.Now,
	}
}

func (e *Engine) today(now time.Time) time.Time {
	return scheduler.NextDueDate(0, now, e.loc)
}

// Start begins a review session from a fresh due-queue snapshot. Any
// previous session for the user is discarded. When nothing is due the
// reply says so and no state is written.
func (e *Engine) Start(userID int64) (*Reply, error) {
	now := e.clock()

	due, err := e.store.DueCards(userID, e.today(now), e.batch)
	if err != nil {
		return nil, fmt.Errorf("failed to build session snapshot for user %d: %w", userID, err)
	}
	if len(due) == 0 {
		if err := e.states.Delete(userID); err != nil {
			return nil, err
		}
		return &Reply{Text: "Nothing is due right now. Come back later, or add more cards with /sources."}, nil
	}

	cards := make([]SessionCard, len(due))
	for i, dc := range due {
		cards[i] = SessionCard{CardID: dc.Card.ID, Front: dc.Card.Front}
	}

	sess := &Session{
		SessionID:   uuid.NewString(),
		Current:     cards[0],
		Index:       0,
		TotalCards:  len(cards),
		Cards:       cards,
		PresentedAt: now.UnixMilli(),
		StartedAt:   now.UnixMilli(),
	}

	if err := e.save(userID, stepAttempt, sess, now); err != nil {
		return nil, err
	}
	return e.presentReply(sess), nil
}

// Active reports whether the user currently has a live review session.
func (e *Engine) Active(userID int64) (bool, error) {
	st, _, err := e.states.Get(userID, e.clock())
	if err != nil {
		return false, err
	}
	return st != nil && st.Mode == dialog.ModeReviewSession, nil
}

// Reset drops the user's session without a summary. The dialog router
// calls it when another top-level command interrupts a session.
func (e *Engine) Reset(userID int64) error {
	return e.states.Delete(userID)
}

// Handle processes one inbound input for the user. The second return
// value reports whether an active session consumed the input; when it
// is false the router should treat the input as a top-level command.
func (e *Engine) Handle(userID int64, input string) (*Reply, bool, error) {
	now := e.clock()

	st, expired, err := e.states.Get(userID, now)
	if err != nil {
		return nil, false, err
	}
	if expired {
		return &Reply{Text: "Your review session expired after 5 minutes of inactivity. Start a new one with /review."}, true, nil
	}
	if st == nil || st.Mode != dialog.ModeReviewSession {
		return nil, false, nil
	}

	var sess Session
	if err := json.Unmarshal(st.Data, &sess); err != nil {
		// Unreadable payload: drop the session rather than wedging the user.
		if derr := e.states.Delete(userID); derr != nil {
			return nil, true, derr
		}
		return &Reply{Text: "Your review session could not be restored. Start a new one with /review."}, true, nil
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	if isExit(normalized) {
		reply, err := e.finish(userID, &sess, now)
		return reply, true, err
	}

	switch st.Step {
	case stepAttempt:
		reply, err := e.handleAttempt(userID, &sess, input, normalized, now)
		return reply, true, err
	case stepGrade:
		reply, err := e.handleGrade(userID, &sess, normalized, now)
		return reply, true, err
	default:
		// Unknown step inside a review_session envelope: treat it like
		// a corrupt payload.
		if derr := e.states.Delete(userID); derr != nil {
			return nil, true, derr
		}
		return &Reply{Text: "Your review session could not be restored. Start a new one with /review."}, true, nil
	}
}

// handleAttempt processes step 1: a reveal request or a recall
// attempt. Either way the conversation moves to step 2.
func (e *Engine) handleAttempt(userID int64, sess *Session, raw, normalized string, now time.Time) (*Reply, error) {
	card, err := e.store.GetCard(sess.Current.CardID)
	if err != nil {
		return nil, err
	}
	if card == nil || !card.Active {
		// The card vanished or was deactivated mid-session (a source
		// sync); skip it.
		return e.advance(userID, sess, now)
	}

	var feedback string
	if isReveal(normalized) {
		sess.Hints++
		feedback = "The answer is:\n\n" + renderBack(card)
	} else {
		sess.Attempts++
		switch Classify(raw, card.Back) {
		case MatchExact:
			feedback = "✅ Correct!\n\n" + renderBack(card)
		case MatchNearMiss:
			feedback = "🤏 Almost — looks like a typo.\n\n" + renderBack(card)
		case MatchPartial:
			feedback = "🟡 Partly there.\n\n" + renderBack(card)
		default:
			feedback = "❌ Not quite.\n\n" + renderBack(card)
		}
	}

	if err := e.save(userID, stepGrade, sess, now); err != nil {
		return nil, err
	}

	return &Reply{
		Text:    feedback + "\n\nHow well did you recall it?",
		Buttons: gradeButtons(sess.Current.CardID),
	}, nil
}

// handleGrade processes step 2: parse the grade, run the scheduler,
// persist atomically, then advance or finish. Invalid input re-prompts
// without touching any state.
func (e *Engine) handleGrade(userID int64, sess *Session, normalized string, now time.Time) (*Reply, error) {
	grade, ok := parseGrade(normalized, sess.Current.CardID)
	if !ok {
		return &Reply{
			Text:    "Please grade your recall with a number from 0 (blackout) to 5 (perfect).",
			Buttons: gradeButtons(sess.Current.CardID),
		}, nil
	}

	if err := e.applyGrade(userID, sess, grade, now); err != nil {
		// Conversation state is untouched: retrying the same input is safe.
		return nil, err
	}

	if grade >= int(scheduler.PassingGrade) {
		sess.CorrectCount++
		sess.CorrectStreak++
	} else {
		sess.IncorrectCount++
		sess.CorrectStreak = 0
	}

	return e.advance(userID, sess, now)
}

// applyGrade runs the scheduler against the card's persisted state and
// commits the state update together with the log entry.
func (e *Engine) applyGrade(userID int64, sess *Session, grade int, now time.Time) error {
	cardID := sess.Current.CardID

	prev, err := e.store.GetReviewState(cardID)
	if err != nil {
		return err
	}
	if prev == nil {
		// A missing scheduling row is just another flavor of malformed
		// state: grade against defaults rather than failing the turn.
		prev = &domain.ReviewState{
			CardID:     cardID,
			UserID:     userID,
			EaseFactor: scheduler.DefaultEaseFactor,
			Queue:      domain.QueueNew,
			DueDate:    e.today(now),
		}
	}

	before := scheduler.State{
		EaseFactor:   prev.EaseFactor,
		IntervalDays: prev.IntervalDays,
		Repetitions:  prev.Repetitions,
		Lapses:       prev.Lapses,
	}
	after := scheduler.Apply(scheduler.Grade(grade), before)

	next := *prev
	next.EaseFactor = after.EaseFactor
	next.IntervalDays = after.IntervalDays
	next.Repetitions = after.Repetitions
	next.Lapses = after.Lapses
	next.DueDate = scheduler.NextDueDate(after.IntervalDays, now, e.loc)
	next.LastReviewedAt = &now
	next.LastGrade = &grade
	next.Queue = promote(prev.Queue, after.IntervalDays)

	entry := domain.ReviewLogEntry{
		CardID:            cardID,
		UserID:            userID,
		ReviewedAt:        now,
		Grade:             grade,
		EaseBefore:        before.EaseFactor,
		EaseAfter:         after.EaseFactor,
		IntervalBefore:    before.IntervalDays,
		IntervalAfter:     after.IntervalDays,
		RepetitionsBefore: before.Repetitions,
		RepetitionsAfter:  after.Repetitions,
		LatencyMS:         now.UnixMilli() - sess.PresentedAt,
		SessionID:         sess.SessionID,
		Position:          sess.Index,
	}

	return e.store.ApplyGrade(next, entry)
}

// advance moves to the next snapshot card or finishes the session.
func (e *Engine) advance(userID int64, sess *Session, now time.Time) (*Reply, error) {
	if sess.Index+1 >= len(sess.Cards) {
		return e.finish(userID, sess, now)
	}

	sess.Index++
	sess.Current = sess.Cards[sess.Index]
	sess.PresentedAt = now.UnixMilli()
	sess.Attempts = 0
	sess.Hints = 0

	if err := e.save(userID, stepAttempt, sess, now); err != nil {
		return nil, err
	}
	return e.presentReply(sess), nil
}

// finish emits the session summary and deletes the conversation state.
func (e *Engine) finish(userID int64, sess *Session, now time.Time) (*Reply, error) {
	if err := e.states.Delete(userID); err != nil {
		return nil, err
	}

	total := sess.CorrectCount + sess.IncorrectCount
	accuracy := 0
	if total > 0 {
		accuracy = int(float64(sess.CorrectCount)/float64(total)*100 + 0.5)
	}
	elapsed := time.Duration(now.UnixMilli()-sess.StartedAt) * time.Millisecond

	text := fmt.Sprintf(
		"Session done! 🎉\n\n✅ Correct: %d\n❌ Incorrect: %d\n🎯 Accuracy: %d%%\n⏱ Time: %s",
		sess.CorrectCount, sess.IncorrectCount, accuracy, formatDuration(elapsed),
	)

	// The streak is motivational garnish: a failed lookup should not
	// eat the summary.
	if streak, err := e.store.Streak(userID, e.today(now)); err == nil && streak > 0 {
		text += fmt.Sprintf("\n🔥 Streak: %d day(s)", streak)
	}

	return &Reply{Text: text}, nil
}

func (e *Engine) save(userID int64, step int, sess *Session, now time.Time) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session for user %d: %w", userID, err)
	}
	st := &dialog.State{
		Mode: dialog.ModeReviewSession,
		Step: step,
		Data: data,
	}
	st.Touch(now)
	return e.states.Save(userID, st, now)
}

func (e *Engine) presentReply(sess *Session) *Reply {
	return &Reply{
		Text: fmt.Sprintf("Card %d/%d\n\n%s\n\nType your answer, or tap Show.",
			sess.Index+1, sess.TotalCards, sess.Current.Front),
		Buttons: [][]Button{
			{{Label: "Show answer", Data: "show"}},
			{{Label: "Exit", Data: "exit"}},
		},
	}
}

func renderBack(card *domain.Card) string {
	text := card.Back
	if card.Example != "" {
		text += "\n\nExample: " + card.Example
	}
	return text
}

// promote advances the informational queue tag: a first grade moves a
// new card to learning, and a long enough interval moves it to review.
func promote(q domain.Queue, intervalDays int) domain.Queue {
	if intervalDays >= domain.MatureIntervalDays {
		return domain.QueueReview
	}
	if q == domain.QueueNew {
		return domain.QueueLearning
	}
	return q
}

func isExit(s string) bool {
	return s == "exit" || s == "quit" || s == "stop"
}

func isReveal(s string) bool {
	return s == "show" || s == "reveal" || s == "s"
}

// parseGrade accepts a bare integer 0-5 or a button payload of the
// form grade:<0-5>:<cardID>. A payload for a different card (a stale
// or replayed button) is rejected like any other invalid input.
func parseGrade(s string, cardID int64) (int, bool) {
	if rest, ok := strings.CutPrefix(s, "grade:"); ok {
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return 0, false
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id != cardID {
			return 0, false
		}
		s = parts[0]
	}

	g, err := strconv.Atoi(s)
	if err != nil || g < 0 || g > 5 {
		return 0, false
	}
	return g, true
}

func gradeButtons(cardID int64) [][]Button {
	row := make([]Button, 0, 6)
	for g := 0; g <= 5; g++ {
		row = append(row, Button{
			Label: strconv.Itoa(g),
			Data:  fmt.Sprintf("grade:%d:%d", g, cardID),
		})
	}
	return [][]Button{row, {{Label: "Exit", Data: "exit"}}}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
