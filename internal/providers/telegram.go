package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"fleet-service/internal/logging"
	"fleet-service/internal/models"
	"fleet-service/internal/utils"
)

// TelegramConfig holds the bot token and the operator chat.
type TelegramConfig struct {
	BotToken  string
	ChatID    int64
	RateLimit int
}

// Telegram forwards alerts to one chat, rate limited and retried.
type Telegram struct {
	cfg     TelegramConfig
	limiter *rate.Limiter
	logger  *logging.Logger
	opts    []bot.Option
}

func NewTelegram(cfg TelegramConfig, logger *logging.Logger, opts ...bot.Option) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing Telegram bot token")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("missing Telegram chat id")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	return &Telegram{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)), cfg.RateLimit),
		logger:  logger,
		opts:    opts,
	}, nil
}

// TelegramText renders an alert as a Markdown message.
func TelegramText(a models.Alert) string {
	text := fmt.Sprintf("*%s alert* on device %s\n%s", Subject(a.Level), a.DeviceID, a.Message)
	if a.RobotID != "" {
		text += fmt.Sprintf("\n*Robot:* %s", a.RobotID)
	}
	return text + fmt.Sprintf("\n*At:* %s", a.CreatedAt.UTC().Format(time.RFC3339))
}

func (t *Telegram) Send(ctx context.Context, a models.Alert) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	text := TelegramText(a)

	return utils.Retry(ctx, t.logger, 3, time.Second, func() error {
		b, err := bot.New(t.cfg.BotToken, t.opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}
		params := &bot.SendMessageParams{
			ChatID:    t.cfg.ChatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.cfg.ChatID, err)
		}
		return nil
	})
}
