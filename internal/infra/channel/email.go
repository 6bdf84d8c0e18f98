package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// EmailAPI is the part of the Resend client the email sender needs.
type EmailAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

var emailTemplate = template.Must(template.New("deal").Parse(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 20px; border-radius: 12px 12px 0 0;">
    <h1 style="color: white; margin: 0; font-size: 24px;">{{.Emoji}} Deal Alert!</h1>
  </div>
  <div style="background: #1a1a2e; padding: 24px; border-radius: 0 0 12px 12px; color: #e0e0e0;">
    <h2 style="color: #fff; margin: 0 0 16px 0;">{{.Title}}</h2>
    {{- if .Image}}
    <img src="{{.Image}}" alt="{{.Title}}" style="max-width: 100%; border-radius: 8px; margin-bottom: 16px;">
    {{- end}}
    <div style="background: #252542; padding: 16px; border-radius: 8px; margin-bottom: 16px;">
      <p style="margin: 0 0 8px 0; font-size: 28px; font-weight: bold; color: #4ade80;">{{.Price}}{{.DiscountText}}</p>
      {{- if .OriginalPrice}}
      <p style="margin: 0; color: #888; text-decoration: line-through;">Was {{.OriginalPrice}}</p>
      {{- end}}
    </div>
    <div style="margin-bottom: 16px;">
      <p style="margin: 4px 0; color: #888;">📊 Deal Score: <span style="color: #4ade80; font-weight: bold;">{{.Score}}/100</span></p>
      <p style="margin: 4px 0; color: #888;">🏷️ Brand: {{.Brand}}</p>
      <p style="margin: 4px 0; color: #888;">📦 Source: {{.Source}}</p>
    </div>
    <a href="{{.URL}}" style="display: inline-block; background: #4ade80; color: #000; padding: 12px 24px; border-radius: 8px; text-decoration: none; font-weight: bold;">View Deal →</a>
    <p style="margin-top: 24px; color: #666; font-size: 12px;">
      You're receiving this because you enabled deal alerts on The Hub.
      <a href="{{.ManageURL}}" style="color: #888;">Manage preferences</a>
    </p>
  </div>
</div>`))

type emailView struct {
	content
	ManageURL string
}

type EmailSender struct {
	api         EmailAPI
	from        string
	frontendURL string
	logger      *zap.Logger
}

// NewEmailSender builds a Resend-backed sender. Without an API key every send fails with
// ErrChannelNotConfigured.
func NewEmailSender(apiKey, fromEmail, frontendURL string, httpClient *http.Client, logger *zap.Logger) *EmailSender {
	var api EmailAPI
	if apiKey != "" {
		api = resend.NewCustomClient(httpClient, apiKey).Emails
	}
	return NewEmailSenderWithAPI(api, fromEmail, frontendURL, logger)
}

func NewEmailSenderWithAPI(api EmailAPI, fromEmail, frontendURL string, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		api:         api,
		from:        fmt.Sprintf("The Hub Deals <%s>", fromEmail),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

func (s *EmailSender) Channel() domain.Channel {
	return domain.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, destination domain.Destination, deal domain.Deal) (*domain.DeliveryResult, error) {
	if s.api == nil {
		return nil, fmt.Errorf("email: %w (RESEND_API_KEY missing)", domain.ErrChannelNotConfigured)
	}
	if destination.EmailAddress == "" {
		return nil, fmt.Errorf("email: %w", domain.ErrDestinationMissing)
	}

	c := render(deal)
	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, emailView{content: c, ManageURL: s.frontendURL + "/settings/alerts"}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	sent, err := s.api.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{destination.EmailAddress},
		Subject: Subject(deal),
		Html:    body.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}

	s.logger.Debug("email sent", zap.String("deal_id", deal.ID), zap.String("email_id", sent.Id))
	return &domain.DeliveryResult{StatusCode: http.StatusOK, ID: sent.Id}, nil
}

// Subject builds the email subject line, e.g. "🔥🔥🔥 Rolex: $8,500 (20% off)".
func Subject(deal domain.Deal) string {
	c := render(deal)
	return fmt.Sprintf("%s %s: %s%s", c.Emoji, orDefault(deal.Brand, "Deal"), c.Price, c.DiscountText)
}
