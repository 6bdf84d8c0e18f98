package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// normalizeListing maps one listing row onto a Deal. Watch and sneaker tables carry
// "brand", the car table carries "make". Rows without an id are rejected.
func normalizeListing(row map[string]interface{}, category string) (domain.Deal, bool) {
	id := asString(row["id"])
	if id == "" {
		return domain.Deal{}, false
	}

	deal := domain.Deal{
		ID:       id,
		Category: category,
		Brand:    firstString(row, "brand", "make"),
		Model:    asString(row["model"]),
		Title:    asString(row["title"]),
		Source:   asString(row["source"]),
		URL:      asString(row["url"]),
		ImageURL: asString(row["image_url"]),
		Images:   asStrings(row["images"]),
	}
	if price, ok := asDecimal(row["price"]); ok {
		deal.Price = price
	}
	if original, ok := asDecimal(row["original_price"]); ok {
		deal.OriginalPrice = &original
	}
	if discount, ok := asDecimal(row["discount_percent"]); ok {
		value := discount.InexactFloat64()
		deal.DiscountPercent = &value
	}
	if score, ok := asDecimal(row["deal_score"]); ok {
		value := int(score.Round(0).IntPart())
		deal.DealScore = &value
	}
	if created, ok := row["created_at"].(time.Time); ok {
		deal.CreatedAt = &created
	}
	return deal, true
}

func firstString(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value := asString(row[key]); value != "" {
			return value
		}
	}
	return ""
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case uuid.UUID:
		return v.String()
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asDecimal(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case string:
		return parseDecimal(v)
	case []byte:
		return parseDecimal(string(v))
	default:
		return decimal.Decimal{}, false
	}
}

func parseDecimal(value string) (decimal.Decimal, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func asStrings(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string, []byte:
		var arr pq.StringArray
		if err := arr.Scan(v); err != nil {
			return nil
		}
		return []string(arr)
	default:
		return nil
	}
}
