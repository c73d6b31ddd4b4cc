package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/user/replacementbot/internal/schedule"
	"github.com/user/replacementbot/internal/storage"
	"github.com/user/replacementbot/pkg/logger"
)

// maxClear bounds how many messages one "clear" walks back through.
const maxClear = 100

// groupsPerRow is the width of the group keyboard.
const groupsPerRow = 3

// API is the subset of the Telegram client the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Subscribers registers chats for change announcements.
type Subscribers interface {
	Add(ctx context.Context, chatID int64) (bool, error)
}

// Handlers manages user interaction for the bot.
type Handlers struct {
	api         API
	subscribers Subscribers
	snapshots   storage.SnapshotLoader
	callbacks   *callbackCodec
	timeout     time.Duration
}

// NewHandlers creates a new handlers instance.
func NewHandlers(api API, subscribers Subscribers, snapshots storage.SnapshotLoader) *Handlers {
	return &Handlers{
		api:         api,
		subscribers: subscribers,
		snapshots:   snapshots,
		callbacks:   newCallbackCodec(24 * time.Hour),
		timeout:     10 * time.Second,
	}
}

// HandleMessage routes commands and reply-keyboard buttons.
func (h *Handlers) HandleMessage(msg *tgbotapi.Message) {
	logger.Debug().
		Int64("chat_id", msg.Chat.ID).
		Str("text", msg.Text).
		Msg("Received message")

	h.register(msg.Chat.ID)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			h.sendKeyboard(msg.Chat.ID, textWelcome)
		default:
			h.sendKeyboard(msg.Chat.ID, textChooseKind)
		}
		return
	}

	switch msg.Text {
	case ButtonGroups:
		h.handleGroups(msg)
	case ButtonTeachers:
		h.handleTeachers(msg)
	case ButtonClear:
		h.handleClear(msg)
	default:
		h.sendKeyboard(msg.Chat.ID, textChooseKind)
	}
}

// HandleCallback answers inline keyboard presses with a group or teacher report.
func (h *Handlers) HandleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	h.register(chatID)

	data, ok := h.callbacks.Decode(cb.Data)
	if !ok {
		h.answer(cb.ID, textExpired)
		return
	}

	snap, ok := h.loadSnapshot()
	if !ok {
		h.answer(cb.ID, textNoData)
		h.sendText(chatID, textNoData)
		return
	}
	h.answer(cb.ID, "")

	var report string
	switch data.Kind {
	case kindGroup:
		report = GroupReport(snap, data.Value)
	case kindTeacher:
		report = TeacherReport(snap, data.Value)
	}
	for _, chunk := range splitMessage(report, maxMessageLen) {
		h.sendText(chatID, chunk)
	}
}

func (h *Handlers) handleGroups(msg *tgbotapi.Message) {
	snap, ok := h.loadSnapshot()
	if !ok {
		h.sendText(msg.Chat.ID, textNoData)
		return
	}
	groups := schedule.GroupIDs(snap)
	if len(groups) == 0 {
		h.sendText(msg.Chat.ID, textNoGroups)
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, textChooseGroup)
	reply.ReplyToMessageID = msg.MessageID
	reply.ReplyMarkup = h.groupKeyboard(groups)
	h.send(reply)
}

func (h *Handlers) handleTeachers(msg *tgbotapi.Message) {
	snap, ok := h.loadSnapshot()
	if !ok {
		h.sendText(msg.Chat.ID, textNoData)
		return
	}
	teachers := schedule.Teachers(snap)
	if len(teachers) == 0 {
		h.sendText(msg.Chat.ID, textNoTeachers)
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, textChooseTeacher)
	reply.ReplyToMessageID = msg.MessageID
	reply.ReplyMarkup = h.teacherKeyboard(teachers)
	h.send(reply)
}

// handleClear deletes the chat history newest-first until Telegram refuses.
func (h *Handlers) handleClear(msg *tgbotapi.Message) {
	deleted := 0
	for id := msg.MessageID; id > 0 && deleted < maxClear; id-- {
		if _, err := h.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, id)); err != nil {
			break
		}
		deleted++
	}
	logger.Debug().Int64("chat_id", msg.Chat.ID).Int("deleted", deleted).Msg("Chat cleared")
	h.sendKeyboard(msg.Chat.ID, textCleared)
}

func (h *Handlers) register(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	added, err := h.subscribers.Add(ctx, chatID)
	if err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to register subscriber")
		return
	}
	if added {
		logger.Info().Int64("chat_id", chatID).Msg("New subscriber")
	}
}

func (h *Handlers) loadSnapshot() (*schedule.Snapshot, bool) {
	snap, err := h.snapshots.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read snapshot")
		return nil, false
	}
	return snap, snap != nil
}

func (h *Handlers) groupKeyboard(groups []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(groups); start += groupsPerRow {
		end := min(start+groupsPerRow, len(groups))
		var row []tgbotapi.InlineKeyboardButton
		for _, g := range groups[start:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(g, h.callbacks.Encode(kindGroup, g)))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handlers) teacherKeyboard(teachers []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(teachers))
	for _, name := range teachers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, h.callbacks.Encode(kindTeacher, name)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonGroups),
			tgbotapi.NewKeyboardButton(ButtonTeachers),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonClear),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func (h *Handlers) answer(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		logger.Warn().Err(err).Msg("Failed to answer callback")
	}
}

func (h *Handlers) sendKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainKeyboard()
	h.send(msg)
}

func (h *Handlers) sendText(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handlers) send(msg tgbotapi.MessageConfig) {
	if _, err := h.api.Send(msg); err != nil {
		logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("Failed to send reply")
	}
}
