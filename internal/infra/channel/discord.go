package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"go.uber.org/zap"
)

const (
	discordUsername  = "The Hub Deals"
	discordAvatarURL = "https://thehub.app/logo.png"
	discordFooter    = "The Hub Deal Alerts"
)

type discordPayload struct {
	Username  string         `json:"username"`
	AvatarURL string         `json:"avatar_url"`
	Embeds    []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title     string            `json:"title"`
	URL       string            `json:"url,omitempty"`
	Color     int               `json:"color"`
	Fields    []discordField    `json:"fields"`
	Footer    discordFooterText `json:"footer"`
	Timestamp string            `json:"timestamp"`
	Thumbnail *discordThumbnail `json:"thumbnail,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooterText struct {
	Text string `json:"text"`
}

type discordThumbnail struct {
	URL string `json:"url"`
}

type DiscordSender struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewDiscordSender(client *http.Client, logger *zap.Logger) *DiscordSender {
	return &DiscordSender{client: client, logger: logger, now: time.Now}
}

func (s *DiscordSender) Channel() domain.Channel {
	return domain.ChannelDiscord
}

func (s *DiscordSender) Send(ctx context.Context, destination domain.Destination, deal domain.Deal) (*domain.DeliveryResult, error) {
	if destination.DiscordWebhookURL == "" {
		return nil, fmt.Errorf("discord: %w", domain.ErrDestinationMissing)
	}

	body, err := json.Marshal(s.payload(deal))
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, destination.DiscordWebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	defer response.Body.Close()

	result, err := checkResponse(domain.ChannelDiscord, response)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("discord webhook delivered", zap.String("deal_id", deal.ID), zap.Int("status", response.StatusCode))
	return result, nil
}

func (s *DiscordSender) payload(deal domain.Deal) discordPayload {
	c := render(deal)
	embed := discordEmbed{
		Title: "🔥 " + c.Title,
		URL:   c.URL,
		Color: c.Color,
		Fields: []discordField{
			{Name: "💰 Price", Value: "**" + c.Price + "**" + c.DiscountText, Inline: true},
			{Name: "📊 Deal Score", Value: c.Score + "/100", Inline: true},
			{Name: "🏷️ Brand", Value: c.Brand, Inline: true},
			{Name: "📦 Source", Value: c.Source, Inline: true},
		},
		Footer:    discordFooterText{Text: discordFooter},
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
	if c.OriginalPrice != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "🏷️ Was", Value: "~~" + c.OriginalPrice + "~~", Inline: true})
	}
	if c.Image != "" {
		embed.Thumbnail = &discordThumbnail{URL: c.Image}
	}
	return discordPayload{
		Username:  discordUsername,
		AvatarURL: discordAvatarURL,
		Embeds:    []discordEmbed{embed},
	}
}
