package channel

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const DefaultTelegramEndpoint = tgbotapi.APIEndpoint

// TelegramSender posts alerts with sendMessage. Users may bring their own bot token; one API
// client is kept per token.
type TelegramSender struct {
	defaultToken string
	endpoint     string
	httpClient   *http.Client
	logger       *zap.Logger

	clients sync.Map
}

func NewTelegramSender(defaultToken, endpoint string, httpClient *http.Client, logger *zap.Logger) *TelegramSender {
	if endpoint == "" {
		endpoint = DefaultTelegramEndpoint
	}
	return &TelegramSender{
		defaultToken: defaultToken,
		endpoint:     endpoint,
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (s *TelegramSender) Channel() domain.Channel {
	return domain.ChannelTelegram
}

func (s *TelegramSender) Send(ctx context.Context, destination domain.Destination, deal domain.Deal) (*domain.DeliveryResult, error) {
	token := destination.TelegramBotToken
	if token == "" {
		token = s.defaultToken
	}
	if token == "" {
		return nil, fmt.Errorf("telegram: %w", domain.ErrChannelNotConfigured)
	}
	chatID := strings.TrimSpace(destination.TelegramChatID)
	if chatID == "" {
		return nil, fmt.Errorf("telegram: %w", domain.ErrDestinationMissing)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, TelegramText(deal))
	} else {
		msg = tgbotapi.NewMessageToChannel(chatID, TelegramText(deal))
	}
	msg.ParseMode = tgbotapi.ModeHTML

	sent, err := s.client(token).Send(msg)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	s.logger.Debug("telegram message sent", zap.String("deal_id", deal.ID), zap.Int("message_id", sent.MessageID))
	return &domain.DeliveryResult{StatusCode: http.StatusOK, ID: strconv.Itoa(sent.MessageID)}, nil
}

// client builds the API handle without the getMe round trip NewBotAPI performs.
func (s *TelegramSender) client(token string) *tgbotapi.BotAPI {
	if cached, ok := s.clients.Load(token); ok {
		return cached.(*tgbotapi.BotAPI)
	}
	api := &tgbotapi.BotAPI{
		Token:  token,
		Client: s.httpClient,
		Buffer: 100,
	}
	api.SetAPIEndpoint(s.endpoint)
	actual, _ := s.clients.LoadOrStore(token, api)
	return actual.(*tgbotapi.BotAPI)
}

// TelegramText renders the HTML-mode message body.
func TelegramText(deal domain.Deal) string {
	c := render(deal)
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>DEAL ALERT</b> %s\n\n", c.Emoji, c.Emoji)
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(c.Title))
	fmt.Fprintf(&b, "💰 Price: <b>%s</b>%s\n", c.Price, html.EscapeString(c.DiscountText))
	if c.OriginalPrice != "" {
		fmt.Fprintf(&b, "<s>%s</s>\n", c.OriginalPrice)
	}
	fmt.Fprintf(&b, "\n📊 Deal Score: <b>%s/100</b>\n", c.Score)
	fmt.Fprintf(&b, "🏷️ Brand: %s\n", html.EscapeString(c.Brand))
	fmt.Fprintf(&b, "📦 Source: %s\n", html.EscapeString(c.Source))
	if c.URL != "" {
		fmt.Fprintf(&b, "\n🔗 %s", html.EscapeString(c.URL))
	}
	return strings.TrimSpace(b.String())
}
