// Package telegram provides Telegram bot functionality.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/user/replacementbot/internal/notifier"
	"github.com/user/replacementbot/internal/storage"
	"github.com/user/replacementbot/pkg/logger"
)

// Bot represents the Telegram bot.
type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *Handlers
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBot creates a new Telegram bot instance.
func NewBot(token string, debug bool, subscribers Subscribers, snapshots storage.SnapshotLoader) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	api.Debug = debug

	logger.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")

	ctx, cancel := context.WithCancel(context.Background())

	return &Bot{
		api:      api,
		handlers: NewHandlers(api, subscribers, snapshots),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins listening for updates.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.dispatch(update)
			}
		}
	}()

	logger.Info().Msg("Telegram bot started, listening for updates")
}

// Stop gracefully stops the bot.
func (b *Bot) Stop() {
	logger.Info().Msg("Stopping Telegram bot")
	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

func (b *Bot) dispatch(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("Update handler panicked")
		}
	}()

	switch {
	case update.Message != nil:
		b.handlers.HandleMessage(update.Message)
	case update.CallbackQuery != nil:
		b.handlers.HandleCallback(update.CallbackQuery)
	}
}

// SendText delivers a plain text message. Errors meaning the chat can never be
// reached again wrap notifier.ErrSubscriberGone.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := b.api.Send(msg); err != nil {
		return classifySendError(err)
	}
	return nil
}

// classifySendError marks blocked, deactivated and unknown chats as gone.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if permanentFailure(apiErr.Code, apiErr.Message) {
		return fmt.Errorf("%w: %s", notifier.ErrSubscriberGone, apiErr.Message)
	}
	return err
}

func permanentFailure(code int, description string) bool {
	switch code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		d := strings.ToLower(description)
		return strings.Contains(d, "chat not found") ||
			strings.Contains(d, "user is deactivated") ||
			strings.Contains(d, "peer_id_invalid")
	default:
		return false
	}
}
