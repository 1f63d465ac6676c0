package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// TelegramNotifier posts alerts to a chat through the Bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramNotifier needs a bot token from @BotFather and the target
// chat, group or channel ID.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: "https://api.telegram.org",
		client:  &http.Client{Timeout: sendTimeout},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification,omitempty"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := telegramMessage{
		ChatID:                t.chatID,
		Text:                  formatTelegram(alert),
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
		// informational alerts arrive silently
		DisableNotification: alert.Level == AlertInfo,
	}

	raw, err := postJSON(ctx, t.client, t.apiBase+"/bot"+t.token+"/sendMessage", msg)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	var reply telegramReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("telegram: decode reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("telegram: rejected: %s", reply.Description)
	}

	slog.Debug("telegram alert sent", "symbol", alert.Symbol, "timeframe", alert.Timeframe)
	return nil
}

func formatTelegram(a Alert) string {
	icon := "ℹ️"
	switch a.Level {
	case AlertWarning:
		icon = "📡"
	case AlertCritical:
		icon = "🚨"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n%s", icon, escapeMarkdown(a.Title), escapeMarkdown(a.Message))
	if !a.TS.IsZero() {
		fmt.Fprintf(&b, "\n\n_%s_", escapeMarkdown(a.TS.UTC().Format("2006-01-02 15:04 UTC")))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", "\\~", "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
