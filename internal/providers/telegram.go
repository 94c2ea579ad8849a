package providers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"marketwatch/internal/config"
	"marketwatch/internal/logging"
	"marketwatch/internal/models"
	"marketwatch/internal/utils"
)

// telegramLimiter is the global rate limiter for Telegram messages. It
// is initialized exactly once; concurrent first sends must all observe
// the same instance.
var (
	telegramLimiter     *rate.Limiter
	telegramLimiterOnce sync.Once
)

// initTelegramLimiter initializes the Telegram rate limiter
func initTelegramLimiter(ratePerSecond int) {
	telegramLimiterOnce.Do(func() {
		if ratePerSecond <= 0 {
			ratePerSecond = 20
		}
		telegramLimiter = rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond)
	})
}

// SendTelegram delivers an alert message via the go-telegram/bot library.
// The destination chat_id comes from the task's channel params, the bot
// token from the service config.
func SendTelegram(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams, logger *logging.Logger, cfg config.Config) error {
	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is not configured")
	}

	chatID, err := chatIDFromParams(params)
	if err != nil {
		return err
	}

	initTelegramLimiter(cfg.Telegram.RatePerSecond)
	if err := telegramLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	text := fmt.Sprintf("*%s*\n\n%s", event.Subject(), message)

	// Retry sending message
	return utils.Retry(logger, 3, time.Second, func() error {
		b, err := bot.New(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}

		sendParams := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, sendParams); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
		}
		return nil
	})
}

// chatIDFromParams extracts chat_id, tolerating the numeric and string
// forms JSON decoding produces.
func chatIDFromParams(params models.ChannelParams) (int64, error) {
	if params == nil {
		return 0, fmt.Errorf("missing telegram params: chat_id is required")
	}
	switch v := params["chat_id"].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid chat_id %q: %w", v, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("missing telegram params: chat_id is required")
	}
}
