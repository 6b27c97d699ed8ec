package telegram

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/metrics"
)

// Sender доставляет отформатированные уведомления в Telegram-чаты.
// Комната уведомлений отображается на chat id.
type Sender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.DeliverySink = (*Sender)(nil)

// NewSender создаёт sink поверх Bot API.
func NewSender(bot *tgbotapi.BotAPI, log zerolog.Logger) *Sender {
	return &Sender{bot: bot, log: log}
}

// Send отправляет сообщение в комнату. Длинный текст режется на части
// по лимиту Telegram.
func (s *Sender) Send(ctx context.Context, roomID string, msg domain.Message) error {
	chatID, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		return fmt.Errorf("некорректный идентификатор комнаты %q: %w", roomID, err)
	}

	parseMode := tgbotapi.ModeHTML
	body := msg.Rich
	if body == "" || (msg.Format != "" && msg.Format != domain.RichFormatHTML) {
		// Без HTML-представления отправляем простой текст как есть.
		parseMode = ""
		body = msg.Plain
	}
	if extra := formatExtra(msg.Extra); extra != "" && parseMode == tgbotapi.ModeHTML {
		body += "\n" + extra
	}

	parts := SplitMessage(body)
	if len(parts) > 1 {
		s.log.Debug().Int64("chat_id", chatID).Int("parts", len(parts)).Msg("telegram: сообщение разбито по лимиту")
	}
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := tgbotapi.NewMessage(chatID, part)
		out.ParseMode = parseMode
		out.DisableWebPagePreview = true

		start := time.Now()
		_, err := s.bot.Send(out)
		metrics.ObserveNetworkRequest("telegram", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("отправка сообщения: %w", err)
		}
	}
	return nil
}

// formatExtra превращает дополнительные поля в хвостовые строки сообщения.
// Порядок фиксируем сортировкой ключей.
func formatExtra(extra map[string]string) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if extra[k] == "" {
			continue
		}
		fmt.Fprintf(&b, "<i>%s:</i> %s\n", html.EscapeString(k), html.EscapeString(extra[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}
