// Package stats serves the command/button-driven statistics display:
// /start replies with a welcome and period buttons, callbacks edit the
// message in place with aggregates over the selected window.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"slotrelay/internal/storage"
	"slotrelay/internal/transport"
	"slotrelay/pkg/logx"
)

type Store interface {
	StatsSummary(ctx context.Context, days int, now time.Time) (storage.Summary, error)
}

type Handler struct {
	store   Store
	adapter transport.Adapter
	log     logx.Logger
}

func New(store Store, adapter transport.Adapter, log logx.Logger) *Handler {
	return &Handler{store: store, adapter: adapter, log: log}
}

const welcome = `🤖 <b>Привіт! Я бот для відстеження слотів консульств України в Канаді</b>

📊 <b>Функції:</b>
• Автоматичне відстеження нових слотів
• Оновлення повідомлень коли слоти зайняті
• Тихі сповіщення за 5 хв (на основі статистики)
• Проста статистика

Натисни кнопку нижче для перегляду статистики!`

func (h *Handler) HandleStart(ctx context.Context, m *transport.Message) {
	to := transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	_, err := h.adapter.SendText(ctx, to, welcome, &transport.SendOptions{
		ParseMode:          tele.ModeHTML,
		DisablePreview:     true,
		ReplyMarkupAdapter: periodMarkup(0),
	})
	if err != nil {
		h.log.Warn("start reply failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
}

func (h *Handler) HandleCallback(ctx context.Context, cb *transport.Callback) {
	days, ok := parseDays(cb.Data)
	if !ok {
		_ = h.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	text, err := h.format(ctx, days)
	if err != nil {
		h.log.Warn("stats query failed", logx.Int("days", days), logx.Err(err))
		_ = h.adapter.AnswerCallback(ctx, cb.ID, "Статистика тимчасово недоступна")
		return
	}

	ref := transport.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	err = h.adapter.EditText(ctx, ref, text, &transport.SendOptions{
		ParseMode:          tele.ModeHTML,
		DisablePreview:     true,
		ReplyMarkupAdapter: periodMarkup(days),
	})
	if err != nil {
		h.log.Warn("stats edit failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
	}
	_ = h.adapter.AnswerCallback(ctx, cb.ID, "")
}

// parseDays accepts both the current numeric form (stats_7, stats_30) and
// the legacy named periods still found on old keyboards.
func parseDays(data string) (int, bool) {
	if !strings.HasPrefix(data, "stats_") {
		return 0, false
	}
	switch p := strings.TrimPrefix(data, "stats_"); p {
	case "week", "refresh":
		return 7, true
	case "month":
		return 30, true
	case "year":
		return 365, true
	default:
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			return n, true
		}
		return 7, true
	}
}

func (h *Handler) format(ctx context.Context, days int) (string, error) {
	sum, err := h.store.StatsSummary(ctx, days, time.Now())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Статистика за %d днів</b>\n\n", days)

	if sum.Messages == 0 {
		b.WriteString("❌ Даних немає")
		return b.String(), nil
	}

	fmt.Fprintf(&b, "📈 <b>Всього повідомлень:</b> %d\n", sum.Messages)
	fmt.Fprintf(&b, "🎯 <b>Всього слотів:</b> %d\n", sum.Slots)
	fmt.Fprintf(&b, "📊 <b>В середньому слотів на повідомлення:</b> %.1f\n\n",
		float64(sum.Slots)/float64(sum.Messages))

	b.WriteString("🏙 <b>Найактивніші міста:</b>\n")
	for i, c := range sum.Cities {
		if i >= 3 {
			break
		}
		pct := float64(c.Count) / float64(sum.Messages) * 100
		fmt.Fprintf(&b, "%d. <b>%s</b>: %d разів (%.1f%%)\n", i+1, c.Name, c.Count, pct)
	}
	return b.String(), nil
}

func periodMarkup(current int) *tele.ReplyMarkup {
	rows := [][]tele.InlineButton{
		{{Text: "📊 Статистика за тиждень", Data: "stats_7"}},
		{{Text: "📆 Статистика за місяць", Data: "stats_30"}},
	}
	if current > 0 {
		rows = append(rows, []tele.InlineButton{
			{Text: "🔄 Оновити", Data: "stats_" + strconv.Itoa(current)},
		})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
