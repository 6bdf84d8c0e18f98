package domain

import "context"

// Destination carries every per-user delivery address. Each sender reads and validates
// only the fields of its own channel.
type Destination struct {
	EmailAddress      string
	TelegramChatID    string
	TelegramBotToken  string
	DiscordWebhookURL string
	WebhookURL        string
	WebhookHeaders    map[string]string
}

type DeliveryResult struct {
	StatusCode int    `json:"status"`
	ID         string `json:"id,omitempty"`
	Body       string `json:"body,omitempty"`
}

type ChannelSender interface {
	Channel() Channel
	Send(ctx context.Context, destination Destination, deal Deal) (*DeliveryResult, error)
}
