package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Deal is a normalized, immutable snapshot of a scored listing. It is copied by value into
// every queue row so delivery does not depend on the source listing still existing.
type Deal struct {
	ID              string           `json:"id"`
	Category        string           `json:"category"`
	Brand           string           `json:"brand,omitempty"`
	Model           string           `json:"model,omitempty"`
	Title           string           `json:"title,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *float64         `json:"discount_percent,omitempty"`
	DealScore       *int             `json:"deal_score,omitempty"`
	Source          string           `json:"source,omitempty"`
	URL             string           `json:"url,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	Images          []string         `json:"images,omitempty"`
	CreatedAt       *time.Time       `json:"created_at,omitempty"`
}

// Score returns the deal score, 0 when the listing carries none.
func (d Deal) Score() int {
	if d.DealScore == nil {
		return 0
	}
	return *d.DealScore
}

func (d Deal) Discount() float64 {
	if d.DiscountPercent == nil {
		return 0
	}
	return *d.DiscountPercent
}

// DisplayTitle falls back to "brand model" when the listing has no title.
func (d Deal) DisplayTitle() string {
	if strings.TrimSpace(d.Title) != "" {
		return d.Title
	}
	return strings.TrimSpace(d.Brand + " " + d.Model)
}

// PrimaryImage prefers image_url over the first entry of images.
func (d Deal) PrimaryImage() string {
	if d.ImageURL != "" {
		return d.ImageURL
	}
	if len(d.Images) > 0 {
		return d.Images[0]
	}
	return ""
}

func (d Deal) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrInvalidDeal
	}
	return nil
}

// ScoreTier buckets a deal score for rendering.
type ScoreTier int

const (
	ScoreTierLow ScoreTier = iota
	ScoreTierMedium
	ScoreTierHigh
)

func (d Deal) Tier() ScoreTier {
	score := d.Score()
	switch {
	case score >= 80:
		return ScoreTierHigh
	case score >= 60:
		return ScoreTierMedium
	default:
		return ScoreTierLow
	}
}
