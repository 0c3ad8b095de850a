package sink

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/wallwatch/wallwatch/internal/events"
)

// eventTitles mirrors original_source's telegram_notifier._EVENT_TITLES
// — one short headline per lifecycle kind.
var eventTitles = map[events.Kind]string{
	events.KindCandidate: "WALL CANDIDATE",
	events.KindConfirmed: "WALL CONFIRMED",
	events.KindConsuming: "WALL CONSUMING",
	events.KindLost:      "WALL LOST",
}

// Telegram delivers events as chat messages via the Bot API. Outbound
// sends are paced by a token-bucket limiter so a burst of wall events
// never trips Telegram's own per-chat rate limit.
type Telegram struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	limiter  *rate.Limiter
}

// NewTelegram returns a Telegram sink bound to chatID, sending at most
// ratePerSecond messages per second with a burst of burst.
func NewTelegram(bot *tgbotapi.BotAPI, chatID int64, ratePerSecond float64, burst int) *Telegram {
	return &Telegram{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, evt events.Event) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	text := fmt.Sprintf("%s\n%s", title(evt.Kind()), formatLine(evt))
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = ""
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func title(k events.Kind) string {
	if t, ok := eventTitles[k]; ok {
		return t
	}
	return k.String()
}
