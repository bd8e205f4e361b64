// Package bot is the Telegram transport: it routes inbound updates to
// the review engine or the command handlers and renders replies and
// inline keyboards.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/conorfennell/recall/internal/review"
	"github.com/conorfennell/recall/internal/storage"
	deckssync "github.com/conorfennell/recall/internal/sync"
)

const helpText = `I help you retain vocabulary with spaced repetition.

/review — start a graded recall session
/due — how many cards are waiting
/stats — collection and streak overview
/sources <path or git URL> — add a deck source
/sources — list your deck sources
/sync — pull your sources and pick up new cards
/help — this message

During a session: type your answer, or use show / exit.`

// Bot wires the Telegram API to the review engine and storage.
type Bot struct {
	api    *tgbotapi.BotAPI
	db     *storage.DB
	engine *review.Engine
	syncer *deckssync.Syncer
	loc    *time.Location
}

// New creates the bot and verifies the token against the Telegram API.
func New(token string, db *storage.DB, engine *review.Engine, syncer *deckssync.Syncer, loc *time.Location) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return &Bot{api: api, db: db, engine: engine, syncer: syncer, loc: loc}, nil
}

// Start consumes updates until the context is cancelled. Updates are
// handled inline, not in per-update goroutines: a user's events must
// be applied in the order they arrived, because grading is not
// commutative.
func (b *Bot) Start(ctx context.Context) error {
	slog.Info("bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update := <-updates:
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		// Acknowledge so the client stops its spinner.
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			slog.Warn("failed to answer callback", "error", err)
		}
		if cb.Message == nil {
			return
		}
		b.handleInput(cb.From.ID, cb.Message.Chat.ID, cb.Data, true)

	case update.Message != nil && update.Message.Text != "":
		msg := update.Message
		b.handleInput(msg.From.ID, msg.Chat.ID, msg.Text, false)
	}
}

func (b *Bot) handleInput(userID, chatID int64, text string, fromButton bool) {
	slog.Debug("update received", "user", userID, "text", truncate(text, 50))

	if strings.HasPrefix(text, "/") {
		b.handleCommand(userID, chatID, text)
		return
	}

	reply, handled, err := b.engine.Handle(userID, text)
	if err != nil {
		slog.Error("review turn failed", "user", userID, "error", err)
		b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
		return
	}
	if handled {
		b.send(chatID, reply)
		return
	}

	// A stray button press after its session ended can be dropped
	// silently; free text deserves a pointer to /help.
	if !fromButton {
		b.send(chatID, &review.Reply{Text: "I didn't catch that. Try /review to practice, or /help for the full list."})
	}
}

func (b *Bot) handleCommand(userID, chatID int64, text string) {
	fields := strings.Fields(text)
	command := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	command, _, _ = strings.Cut(command, "@") // strip the @botname suffix in groups
	args := fields[1:]

	// Any top-level command abandons an in-flight session without a
	// summary; /review then starts a fresh one.
	if active, err := b.engine.Active(userID); err == nil && active {
		if err := b.engine.Reset(userID); err != nil {
			slog.Error("failed to reset session", "user", userID, "error", err)
		}
	}

	switch command {
	case "start", "help":
		b.send(chatID, &review.Reply{Text: helpText})

	case "review":
		reply, err := b.engine.Start(userID)
		if err != nil {
			slog.Error("failed to start session", "user", userID, "error", err)
			b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
			return
		}
		b.send(chatID, reply)

	case "due":
		n, err := b.db.CountDue(userID, b.today())
		if err != nil {
			slog.Error("failed to count due cards", "user", userID, "error", err)
			b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
			return
		}
		if n == 0 {
			b.send(chatID, &review.Reply{Text: "Nothing is due. 🎉"})
			return
		}
		b.send(chatID, &review.Reply{Text: fmt.Sprintf("%d card(s) waiting for you. Start with /review.", n)})

	case "stats":
		st, err := b.db.GetUserStats(userID, b.today())
		if err != nil {
			slog.Error("failed to load stats", "user", userID, "error", err)
			b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
			return
		}
		b.send(chatID, &review.Reply{Text: fmt.Sprintf(
			"📚 Cards: %d (new %d, learning %d, review %d)\n📅 Reviews today: %d\n🔥 Streak: %d day(s)",
			st.TotalCards, st.NewCards, st.LearningCards, st.ReviewCards, st.ReviewsToday, st.Streak)})

	case "sources":
		b.handleSources(userID, chatID, args)

	case "sync":
		added, err := b.syncer.RunUser(userID)
		if err != nil {
			slog.Error("sync failed", "user", userID, "error", err)
			b.send(chatID, &review.Reply{Text: "Sync failed. Check your source paths and try again."})
			return
		}
		b.send(chatID, &review.Reply{Text: fmt.Sprintf("Sync done. %d new card(s).", added)})

	default:
		b.send(chatID, &review.Reply{Text: "Unknown command. See /help."})
	}
}

func (b *Bot) handleSources(userID, chatID int64, args []string) {
	if len(args) == 0 {
		sources, err := b.db.GetSourcesByUser(userID)
		if err != nil {
			slog.Error("failed to list sources", "user", userID, "error", err)
			b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
			return
		}
		if len(sources) == 0 {
			b.send(chatID, &review.Reply{Text: "No sources yet. Add one with /sources <path or git URL>."})
			return
		}
		var sb strings.Builder
		sb.WriteString("Your deck sources:\n")
		for _, s := range sources {
			fmt.Fprintf(&sb, "• [%s] %s\n", s.Type, s.Path)
		}
		b.send(chatID, &review.Reply{Text: sb.String()})
		return
	}

	path := args[0]
	existing, err := b.db.FindSourceByPath(userID, path)
	if err != nil {
		slog.Error("failed to check source", "user", userID, "error", err)
		b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
		return
	}
	if existing != nil {
		b.send(chatID, &review.Reply{Text: "That source is already registered. /sync pulls it."})
		return
	}

	sourceType := deckssync.SourceType(path)
	if _, err := b.db.InsertSource(userID, path, sourceType); err != nil {
		slog.Error("failed to add source", "user", userID, "error", err)
		b.send(chatID, &review.Reply{Text: "Something went wrong. Please try again."})
		return
	}
	b.send(chatID, &review.Reply{Text: fmt.Sprintf("Added %s source. Run /sync to pull its cards.", sourceType)})
}

func (b *Bot) send(chatID int64, reply *review.Reply) {
	if reply == nil || reply.Text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(reply.Buttons)
	}
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("send failed", "chat", chatID, "error", err)
	}
}

func keyboard(rows [][]review.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			line = append(line, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		out = append(out, line)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func (b *Bot) today() time.Time {
	now := time.Now().In(b.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.loc)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
