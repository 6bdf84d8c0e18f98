package channel

import (
	"net/http"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"go.uber.org/zap"
)

type Config struct {
	ResendAPIKey        string
	FromEmail           string
	FrontendURL         string
	TelegramBotToken    string
	TelegramAPIEndpoint string
	Timeout             time.Duration
}

// NewSenders builds one sender per channel sharing a single HTTP client.
func NewSenders(cfg Config, logger *zap.Logger) []domain.ChannelSender {
	client := &http.Client{Timeout: cfg.Timeout}
	return []domain.ChannelSender{
		NewEmailSender(cfg.ResendAPIKey, cfg.FromEmail, cfg.FrontendURL, client, logger.Named("email")),
		NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramAPIEndpoint, client, logger.Named("telegram")),
		NewDiscordSender(client, logger.Named("discord")),
		NewWebhookSender(client, logger.Named("webhook")),
	}
}
