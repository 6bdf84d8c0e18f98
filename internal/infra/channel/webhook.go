package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	WebhookEvent     = "deal_alert"
	WebhookUserAgent = "TheHub-AlertService/1.0"
)

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Deal      WebhookDeal `json:"deal"`
}

type WebhookDeal struct {
	ID              string           `json:"id"`
	Title           string           `json:"title,omitempty"`
	Brand           string           `json:"brand,omitempty"`
	Model           string           `json:"model,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *float64         `json:"discount_percent,omitempty"`
	DealScore       *int             `json:"deal_score,omitempty"`
	Source          string           `json:"source,omitempty"`
	URL             string           `json:"url,omitempty"`
	Category        string           `json:"category"`
	ImageURL        string           `json:"image_url,omitempty"`
}

type WebhookSender struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewWebhookSender(client *http.Client, logger *zap.Logger) *WebhookSender {
	return &WebhookSender{client: client, logger: logger, now: time.Now}
}

func (s *WebhookSender) Channel() domain.Channel {
	return domain.ChannelWebhook
}

// Send posts the deal as JSON. User headers are applied after the defaults and may
// override them.
func (s *WebhookSender) Send(ctx context.Context, destination domain.Destination, deal domain.Deal) (*domain.DeliveryResult, error) {
	if destination.WebhookURL == "" {
		return nil, fmt.Errorf("webhook: %w", domain.ErrDestinationMissing)
	}

	payload := WebhookPayload{
		Event:     WebhookEvent,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Deal: WebhookDeal{
			ID:              deal.ID,
			Title:           deal.Title,
			Brand:           deal.Brand,
			Model:           deal.Model,
			Price:           deal.Price,
			OriginalPrice:   deal.OriginalPrice,
			DiscountPercent: deal.DiscountPercent,
			DealScore:       deal.DealScore,
			Source:          deal.Source,
			URL:             deal.URL,
			Category:        deal.Category,
			ImageURL:        deal.PrimaryImage(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, destination.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", WebhookUserAgent)
	for key, value := range destination.WebhookHeaders {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	defer response.Body.Close()

	result, err := checkResponse(domain.ChannelWebhook, response)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("webhook delivered", zap.String("deal_id", deal.ID), zap.Int("status", response.StatusCode))
	return result, nil
}
