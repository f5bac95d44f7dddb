package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramSendInterval spaces messages to one chat to stay under Telegram's
// per-chat limit.
const telegramSendInterval = 2 * time.Second

// botAPI is the part of *tgbotapi.BotAPI the sender uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	bot      botAPI
	chatID   int64
	interval time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

// NewTelegramSender connects to the Bot API with token and targets chatID.
// Connecting verifies the token, so a bad token fails here.
func NewTelegramSender(token, chatID string) (*TelegramSender, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: parse chat id %q: %w", chatID, err)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return newTelegramSender(bot, id, telegramSendInterval), nil
}

func newTelegramSender(bot botAPI, chatID int64, interval time.Duration) *TelegramSender {
	return &TelegramSender{bot: bot, chatID: chatID, interval: interval}
}

// Send posts a MarkdownV2 message with the title in bold. Title and message
// are escaped, so sport keys and team names go out verbatim. Calls are
// serialized and spaced by the send interval.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if wait := t.interval - time.Since(t.lastSend); wait > 0 && !t.lastSend.IsZero() {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("telegram: %w", ctx.Err())
		case <-timer.C:
		}
	}

	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("*%s*\n%s", escapeMarkdown(title), escapeMarkdown(message)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	_, err := t.bot.Send(msg)
	t.lastSend = time.Now()
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// escapeMarkdown escapes text for MarkdownV2. EscapeText leaves backslashes
// alone, so they are doubled first.
func escapeMarkdown(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, strings.ReplaceAll(text, `\`, `\\`))
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
