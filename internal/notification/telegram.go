package notification

import (
	"context"
	"fmt"
	"strings"

	"trading-enginev1/internal/logger"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts through the Telegram Bot API as
// MarkdownV2 messages.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	http     poster
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewTelegramNotifier creates a notifier for the bot token and target chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		http:     newPoster("telegram"),
	}
}

// WithBaseURL points the notifier at another Bot API host.
func (t *TelegramNotifier) WithBaseURL(u string) *TelegramNotifier {
	t.baseURL = u
	return t
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	return t.http.post(ctx, url, telegramMessage{
		ChatID:    t.chatID,
		Text:      formatTelegram(alert, logger.TickID(ctx)),
		ParseMode: "MarkdownV2",
	})
}

func formatTelegram(alert Alert, tickID string) string {
	var b strings.Builder
	b.WriteString(levelBadge(alert.Level))
	b.WriteString(" *")
	if alert.Symbol != "" {
		b.WriteString(escapeMarkdown(alert.Symbol))
		b.WriteString(" · ")
	}
	b.WriteString(escapeMarkdown(alert.Title))
	b.WriteString("*\n\n")
	b.WriteString(escapeMarkdown(alert.Message))
	if tickID != "" {
		b.WriteString("\n`")
		b.WriteString(escapeMarkdown(tickID))
		b.WriteString("`")
	}
	return b.String()
}

func levelBadge(l AlertLevel) string {
	switch l {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	}
	return "ℹ️"
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
