// Package telegram provides a chat front for the tracker via the Telegram Bot API.
// Every chat is its own account: commands sent from a chat record outcomes,
// learn patterns, ask for suggestions and drive the staking cycle of that chat.
//
// Replies use MarkdownV2 formatting and are delivered with retry logic for
// transient API failures such as rate limiting.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/crashoracle/internal/logger"
	"github.com/rs/zerolog"
)

// botAPI is the part of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client sends replies and receives commands
type Client struct {
	bot            botAPI
	maxRetries     int
	retryDelayBase time.Duration
	log            zerolog.Logger
}

// NewClient creates a new Telegram client
func NewClient(botToken string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, maxRetries, retryDelayBase), nil
}

func newClient(bot botAPI, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		log:            logger.Component("telegram"),
	}
}

// Send delivers a MarkdownV2 message to chatID, retrying with a linear backoff.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// Listen long-polls for commands and answers each one through h until ctx is
// cancelled or the update channel closes.
func (c *Client) Listen(ctx context.Context, h *Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.bot.GetUpdatesChan(u)
	defer c.bot.StopReceivingUpdates()

	c.log.Info().Msg("Listening for Telegram commands")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			c.handleUpdate(ctx, h, update)
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, h *Handler, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	if !h.Allowed(chatID) {
		c.log.Warn().Int64("chat_id", chatID).Str("command", msg.Command()).Msg("ignoring command from chat outside the allow-list")
		return
	}

	reply := h.Handle(ctx, chatID, msg.Command(), msg.CommandArguments())
	if err := c.Send(ctx, chatID, reply); err != nil {
		c.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}
