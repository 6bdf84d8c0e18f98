package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the slice of the bot API the handlers reply through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handlers struct {
	settingsURL string
	logger      *zap.Logger
}

func NewHandlers(settingsURL string, logger *zap.Logger) *Handlers {
	return &Handlers{settingsURL: settingsURL, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	message := update.Message
	if message == nil {
		message = update.ChannelPost
	}
	if message == nil || message.Chat == nil {
		return
	}
	if message.IsCommand() {
		h.handleCommand(ctx, api, message)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api Sender, message *tgbotapi.Message) {
	command := message.Command()
	chatID := message.Chat.ID

	fields := []zap.Field{
		zap.Int64("chat_id", chatID),
		zap.String("chat_type", message.Chat.Type),
		zap.String("command", command),
	}
	if message.From != nil {
		fields = append(fields, zap.Int64("telegram_user_id", message.From.ID), zap.String("username", message.From.UserName))
	}
	h.logger.Info("telegram command received", fields...)

	switch command {
	case "start":
		text := "Welcome to The Hub deal alerts.\n\n" + ChatIDText(chatID, message.Chat.Type)
		if h.settingsURL != "" {
			text += "\n\nManage alerts: " + h.settingsURL
		}
		h.reply(api, chatID, text)
	case "chatid", "id":
		h.reply(api, chatID, ChatIDText(chatID, message.Chat.Type))
	case "help":
		h.reply(api, chatID, HelpText)
	default:
		h.logger.Debug("unknown command", zap.Int64("chat_id", chatID), zap.String("command", command))
		h.reply(api, chatID, "Unknown command.\n\n"+HelpText)
	}
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
