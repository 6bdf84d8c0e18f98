// Package channel renders deals and delivers them over email, Telegram, Discord and
// generic webhooks.
package channel

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	ColorHigh   = 0x22c55e
	ColorMedium = 0xeab308
	ColorLow    = 0x3b82f6

	maxErrorBody = 4096
)

var printer = message.NewPrinter(language.English)

// FormatPrice renders a dollar amount with thousands separators, keeping cents only when
// the price has them.
func FormatPrice(price decimal.Decimal) string {
	if price.Equal(price.Truncate(0)) {
		return "$" + printer.Sprintf("%d", price.IntPart())
	}
	value, _ := price.Round(2).Float64()
	return "$" + printer.Sprintf("%.2f", value)
}

func ScoreEmoji(tier domain.ScoreTier) string {
	switch tier {
	case domain.ScoreTierHigh:
		return "🔥🔥🔥"
	case domain.ScoreTierMedium:
		return "🔥🔥"
	default:
		return "🔥"
	}
}

func ScoreColor(tier domain.ScoreTier) int {
	switch tier {
	case domain.ScoreTierHigh:
		return ColorHigh
	case domain.ScoreTierMedium:
		return ColorMedium
	default:
		return ColorLow
	}
}

// content is the channel-independent rendering of a deal.
type content struct {
	Title         string
	Price         string
	OriginalPrice string
	DiscountText  string
	Score         string
	Emoji         string
	Color         int
	Brand         string
	Source        string
	URL           string
	Image         string
}

func render(deal domain.Deal) content {
	c := content{
		Title:  deal.DisplayTitle(),
		Price:  FormatPrice(deal.Price),
		Score:  "N/A",
		Emoji:  ScoreEmoji(deal.Tier()),
		Color:  ScoreColor(deal.Tier()),
		Brand:  orDefault(deal.Brand, "Unknown"),
		Source: orDefault(deal.Source, "Unknown"),
		URL:    deal.URL,
		Image:  deal.PrimaryImage(),
	}
	if deal.OriginalPrice != nil {
		c.OriginalPrice = FormatPrice(*deal.OriginalPrice)
	}
	if deal.Discount() > 0 {
		c.DiscountText = fmt.Sprintf(" (%s%% off)", strconv.FormatFloat(deal.Discount(), 'f', -1, 64))
	}
	if deal.Score() > 0 {
		c.Score = strconv.Itoa(deal.Score())
	}
	return c
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// DeliveryError is returned when a provider answers with a non-2xx status.
type DeliveryError struct {
	Channel    domain.Channel
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %d - %s", e.Channel, e.StatusCode, e.Body)
}

func checkResponse(channel domain.Channel, response *http.Response) (*domain.DeliveryResult, error) {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		// The limit can split a multi-byte rune; text columns reject invalid UTF-8.
		return nil, &DeliveryError{Channel: channel, StatusCode: response.StatusCode, Body: strings.ToValidUTF8(string(body), "")}
	}
	return &domain.DeliveryResult{StatusCode: response.StatusCode}, nil
}
