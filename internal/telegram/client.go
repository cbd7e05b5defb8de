// Package telegram delivers trade signal notifications via the Telegram Bot
// API. Messages use MarkdownV2 formatting and are retried on delivery
// failures such as rate limiting and network errors.
package telegram

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/samayp01/polyarb-engine/internal/models"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// NotifySignal sends a notification for a single generated signal.
func (c *Client) NotifySignal(signal *models.Signal) error {
	msg := tgbotapi.NewMessage(c.chatID, formatSignal(signal))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatSignal formats a signal into a Telegram message
func formatSignal(signal *models.Signal) string {
	directionEmoji := "🟢"
	if signal.Direction == models.DirectionSell {
		directionEmoji = "🔴"
	}

	currentStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", signal.CurrentPrice*100))
	expectedStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", signal.ExpectedPrice*100))
	moveStr := escapeMarkdownV2(fmt.Sprintf("%+.1f%%", signal.ExpectedMove*100))
	confidenceStr := escapeMarkdownV2(fmt.Sprintf("%.0f%%", signal.Confidence*100))
	generatedStr := escapeMarkdownV2(signal.GeneratedAt.Format("2006-01-02 15:04:05"))

	message := fmt.Sprintf("%s *%s Signal*\n\n", directionEmoji, signal.Direction)
	message += fmt.Sprintf("🎯 Market: `%s`\n", escapeMarkdownV2(signal.MarketID))
	message += fmt.Sprintf("💰 Price: %s → expected %s \\(%s\\)\n", currentStr, expectedStr, moveStr)
	message += fmt.Sprintf("📊 Confidence: %s\n", confidenceStr)
	message += fmt.Sprintf("🔗 Leader: `%s` resolved %s\n", escapeMarkdownV2(signal.LeaderMarketID), signal.LeaderOutcome)
	message += fmt.Sprintf("📅 Generated: %s\n", generatedStr)

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	result := ""
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			result += "\\" + string(char)
		default:
			result += string(char)
		}
	}
	return result
}
