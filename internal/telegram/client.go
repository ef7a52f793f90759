// Package telegram provides operator notifications via the Telegram Bot API.
// It alerts on batches needing reconciliation (Failed or Unknown settlement
// outcomes) and on scheduler cycle errors, with retry logic for delivery.
//
// The client uses MarkdownV2 formatting and escapes message content
// accordingly. Alerts are advisory: delivery failure is logged, never
// propagated into the settlement path.
package telegram

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/models"
)

// Client handles Telegram operator notifications
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

// BatchFailed alerts operators that a batch failed to settle and is parked
// until an explicit retry decision.
func (c *Client) BatchFailed(batch *models.Batch, cause string) {
	message := "🛑 *Batch Settlement Failed*\n\n" + c.formatBatch(batch)
	message += fmt.Sprintf("Cause: %s\n", escapeMarkdownV2(cause))
	message += "\nTrades are parked; retry as a new batch after review\\."
	if err := c.send(message); err != nil {
		logger.Warn("Failed to send batch-failed alert: %v", err)
	}
}

// BatchUnknown alerts operators that a batch's settlement outcome is unknown
// and must be reconciled against the chain before it counts as settled.
func (c *Client) BatchUnknown(batch *models.Batch) {
	message := "⚠️ *Batch Settlement Outcome Unknown*\n\n" + c.formatBatch(batch)
	message += "\nConfirmation timed out; reconcile against the chain before any retry\\."
	if err := c.send(message); err != nil {
		logger.Warn("Failed to send batch-unknown alert: %v", err)
	}
}

// SendError notifies operators about a failing scheduler cycle.
func (c *Client) SendError(err error) error {
	message := fmt.Sprintf("🚨 *Oracle Error*\n\n%s", escapeMarkdownV2(err.Error()))
	return c.send(message)
}

// SendRecovery notifies operators that cycles succeed again after failures.
func (c *Client) SendRecovery(consecutiveFailures int) error {
	message := fmt.Sprintf("✅ *Oracle Recovered*\n\nService resumed after %d failed cycle\\(s\\)\\.", consecutiveFailures)
	return c.send(message)
}

// formatBatch renders the batch summary lines shared by the alerts.
func (c *Client) formatBatch(batch *models.Batch) string {
	message := fmt.Sprintf("Batch: `%s`\n", escapeMarkdownV2(batch.ID))
	message += fmt.Sprintf("Trades: %d\n", len(batch.Trades))
	message += fmt.Sprintf("Total value: %d\n", batch.TotalValue)
	if batch.TxHash != "" {
		message += fmt.Sprintf("Tx: `%s`\n", escapeMarkdownV2(batch.TxHash))
	}
	return message
}

// send delivers a message with retry
func (c *Client) send(message string) error {
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = "MarkdownV2" // Use MarkdownV2 for better escaping support

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
