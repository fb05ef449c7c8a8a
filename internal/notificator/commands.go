package notificator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/mintviewer/internal/gifts"
	"github.com/core-coin/mintviewer/internal/models"
)

const (
	invoicePayload  = "subscription_payload"
	invoiceCurrency = "XTR"
)

func (t *TelegramNotificator) handler(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	switch {
	case update.PreCheckoutQuery != nil:
		t.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message == nil:
		return
	case update.Message.SuccessfulPayment != nil:
		t.handleSuccessfulPayment(ctx, update.Message)
	default:
		t.handleCommand(ctx, update.Message)
	}
}

// parseCommand splits "/filter@MintBot Plush Pepe" into "/filter" and "Plush Pepe".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, args, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.Join(strings.Fields(args), " ")
}

func (t *TelegramNotificator) handleCommand(ctx context.Context, msg *tgModels.Message) {
	cmd, args := parseCommand(msg.Text)
	if cmd == "" {
		return
	}
	chatID := models.RecipientID(msg.Chat.ID)
	t.logger.Debugw("Telegram command", "chat_id", chatID, "command", cmd)

	switch cmd {
	case "/start":
		t.handleStart(ctx, msg)
	case "/stop":
		t.handleStop(ctx, chatID)
	case "/buy":
		t.handleBuy(ctx, chatID)
	case "/filter":
		t.handleFilter(ctx, chatID, args)
	case "/clear":
		t.handleClear(ctx, chatID)
	case "/gifts":
		t.reply(ctx, chatID, "Список подарков:\n"+strings.Join(t.registry.Catalog().Names(), "\n"))
	}
}

func (t *TelegramNotificator) handleStart(ctx context.Context, msg *tgModels.Message) {
	chatID := models.RecipientID(msg.Chat.ID)
	userID := chatID
	if msg.From != nil {
		userID = models.RecipientID(msg.From.ID)
	}

	for _, channel := range t.channels {
		status, err := t.MemberStatus(ctx, userID, channel)
		if err != nil {
			t.logger.Errorw("Failed to check channel membership", "chat_id", chatID, "channel", channel, "error", err)
			t.reply(ctx, chatID, "Не удалось проверить подписку на каналы. Попробуйте позже.")
			return
		}
		if status.HasLeft() {
			t.reply(ctx, chatID, "❗ Внимание!\n"+
				"Чтобы получать уведомления, подпишитесь на каналы:\n"+
				strings.Join(t.channels, " и ")+".\n\n"+
				"После подписки повторите команду /start.")
			return
		}
	}

	if !t.registry.IsPaid(chatID) {
		t.reply(ctx, chatID, "ℹ️ У вас отсутствует активная подписка.\n"+
			"Для активации подписки используйте команду /buy.")
		return
	}
	t.registry.Activate(chatID)
	t.logger.Infow("Notifications enabled", "chat_id", chatID)
	t.reply(ctx, chatID, "✅ Уведомления успешно включены!\n"+
		"Вы будете своевременно получать все обновления.")
}

func (t *TelegramNotificator) handleStop(ctx context.Context, chatID models.RecipientID) {
	if !t.registry.Deactivate(chatID) {
		t.reply(ctx, chatID, "Уведомления уже отключены.")
		return
	}
	t.logger.Infow("Notifications disabled", "chat_id", chatID)
	t.reply(ctx, chatID, "🛑 Уведомления отключены.\n"+
		"Вы можете включить их снова, используя команду /start.")
}

func (t *TelegramNotificator) handleBuy(ctx context.Context, chatID models.RecipientID) {
	if t.registry.IsPaid(chatID) {
		t.reply(ctx, chatID, "✅ Подписка уже активна.\n"+
			"Благодарим за использование сервиса!")
		return
	}
	_, err := t.api.SendInvoice(ctx, &bot.SendInvoiceParams{
		ChatID:         int64(chatID),
		Title:          "Подписка на уведомления",
		Description:    fmt.Sprintf("Подписка на уведомления о новинках подарков.\nСтоимость: %d звезд.", t.priceStars),
		Payload:        invoicePayload,
		ProviderToken:  "",
		Currency:       invoiceCurrency,
		Prices:         []tgModels.LabeledPrice{{Label: fmt.Sprintf("Подписка (%d звезд)", t.priceStars), Amount: t.priceStars}},
		StartParameter: "subscription",
	})
	if err != nil {
		t.logger.Errorw("Failed to send invoice", "chat_id", chatID, "error", err)
	}
}

func (t *TelegramNotificator) handleFilter(ctx context.Context, chatID models.RecipientID, args string) {
	const usage = "Использование: /filter Plush Pepe, Cookie Heart, ...(Можно писать как Plush Pepe, так и PlushPepe)"

	names := gifts.ParseList(args)
	_, err := t.registry.SetFilter(chatID, names)
	var invalid *models.InvalidGiftError
	switch {
	case errors.Is(err, models.ErrEmptyFilter):
		t.reply(ctx, chatID, usage)
	case errors.As(err, &invalid):
		t.reply(ctx, chatID, "Следующие подарки не существуют: "+strings.Join(invalid.Names, ", "))
	case err != nil:
		t.logger.Errorw("Failed to set filter", "chat_id", chatID, "error", err)
	default:
		t.logger.Infow("Filter set", "chat_id", chatID, "gifts", names)
		t.reply(ctx, chatID, "Фильтр уведомлений установлен:\n"+strings.Join(names, ", "))
	}
}

func (t *TelegramNotificator) handleClear(ctx context.Context, chatID models.RecipientID) {
	if !t.registry.ClearFilter(chatID) {
		t.reply(ctx, chatID, "Фильтр уведомлений не был установлен.")
		return
	}
	t.reply(ctx, chatID, "✅ Фильтр уведомлений очищен.\n"+
		"Теперь вы будете получать уведомления по всем подаркам.")
}

func (t *TelegramNotificator) handlePreCheckout(ctx context.Context, query *tgModels.PreCheckoutQuery) {
	params := &bot.AnswerPreCheckoutQueryParams{PreCheckoutQueryID: query.ID, OK: true}
	if query.InvoicePayload != invoicePayload {
		params.OK = false
		params.ErrorMessage = "Что-то пошло не так..."
	}
	if _, err := t.api.AnswerPreCheckoutQuery(ctx, params); err != nil {
		t.logger.Errorw("Failed to answer pre-checkout query", "query_id", query.ID, "error", err)
	}
}

func (t *TelegramNotificator) handleSuccessfulPayment(ctx context.Context, msg *tgModels.Message) {
	chatID := models.RecipientID(msg.Chat.ID)
	if err := t.registry.MarkPaid(ctx, chatID); err != nil {
		t.logger.Errorw("Failed to store subscription after payment", "chat_id", chatID,
			"charge_id", msg.SuccessfulPayment.TelegramPaymentChargeID, "error", err)
		t.reply(ctx, chatID, "Платеж получен, но подписку не удалось сохранить. Обратитесь в поддержку.")
		return
	}
	t.registry.Activate(chatID)
	t.reply(ctx, chatID, "✅ Платеж успешно выполнен!\n"+
		"Уведомления активированы. Благодарим за покупку!")
}

func (t *TelegramNotificator) reply(ctx context.Context, chatID models.RecipientID, text string) {
	_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: int64(chatID), Text: text})
	if err != nil {
		t.logger.Errorw("Failed to send reply", "chat_id", chatID, "error", err)
	}
}
