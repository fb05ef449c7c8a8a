package notificator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/internal/registry"
	"github.com/core-coin/mintviewer/pkg/logger"
)

// Telegram allows about 30 messages per second across all chats.
const DefaultSendRate = 25

// botAPI is the subset of *bot.Bot used here.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgModels.Message, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*tgModels.ChatMember, error)
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) (*tgModels.Message, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error)
}

// Options configures a TelegramNotificator.
type Options struct {
	// Channels must all be joined to use the bot.
	Channels []string
	// PriceStars is the subscription price in Telegram Stars.
	PriceStars int
	// SendRate limits outgoing notifications per second.
	SendRate float64
}

// TelegramNotificator sends notifications, checks channel membership and
// serves the bot commands.
type TelegramNotificator struct {
	logger   *logger.Logger
	bot      *bot.Bot
	api      botAPI
	registry *registry.Registry
	limiter  *rate.Limiter

	channels   []string
	priceStars int

	retryAttempts uint
	retryDelay    time.Duration
}

func NewTelegramNotificator(logger *logger.Logger, token string, registry *registry.Registry, opts Options) (*TelegramNotificator, error) {
	provider := newTelegramNotificator(logger, nil, registry, opts)
	b, err := bot.New(token, bot.WithDefaultHandler(provider.handler))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b
	provider.api = b
	return provider, nil
}

func newTelegramNotificator(logger *logger.Logger, api botAPI, registry *registry.Registry, opts Options) *TelegramNotificator {
	if opts.SendRate <= 0 {
		opts.SendRate = DefaultSendRate
	}
	if opts.PriceStars <= 0 {
		opts.PriceStars = 15
	}
	return &TelegramNotificator{
		logger:        logger,
		api:           api,
		registry:      registry,
		limiter:       rate.NewLimiter(rate.Limit(opts.SendRate), 1),
		channels:      opts.Channels,
		priceStars:    opts.PriceStars,
		retryAttempts: 3,
		retryDelay:    time.Second,
	}
}

// Start polls for updates until ctx is cancelled.
func (t *TelegramNotificator) Start(ctx context.Context) {
	t.logger.Info("Starting telegram bot")
	t.bot.Start(ctx)
}

// SendText delivers text to a chat. Flood-control responses are retried;
// every other failure is returned as *models.DeliveryError.
func (t *TelegramNotificator) SendText(ctx context.Context, to models.RecipientID, text string) error {
	err := retry.Do(
		func() error {
			if err := t.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: int64(to),
				Text:   text,
			})
			return err
		},
		retry.Attempts(t.retryAttempts),
		retry.Delay(t.retryDelay),
		retry.Context(ctx),
		retry.RetryIf(isTooManyRequests),
		retry.OnRetry(func(n uint, err error) {
			t.logger.Warnw("Telegram flood control, retrying", "chat_id", to, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return &models.DeliveryError{Recipient: to, Err: err}
	}
	return nil
}

// MemberStatus returns the status of user recipient in channel group.
func (t *TelegramNotificator) MemberStatus(ctx context.Context, recipient models.RecipientID, group string) (models.MemberStatus, error) {
	member, err := t.api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: group,
		UserID: int64(recipient),
	})
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", errors.New("empty chat member response")
	}
	return models.MemberStatus(member.Type), nil
}

func isTooManyRequests(err error) bool {
	var tooMany *bot.TooManyRequestsError
	return errors.As(err, &tooMany)
}
