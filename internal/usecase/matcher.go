package usecase

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
)

// Matches reports whether deal passes the user's filters and, when the deal's brand and
// category are tracked, the watchlist entry for them. The first failing check wins.
func Matches(deal domain.Deal, prefs *domain.AlertPreference, watchlist []domain.BrandWatchlistEntry) bool {
	if len(prefs.Categories) > 0 && !slices.Contains(prefs.Categories, deal.Category) {
		return false
	}

	dealBrand := strings.ToLower(deal.Brand)
	if len(prefs.Brands) > 0 && !containsAnyBrand(dealBrand, prefs.Brands) {
		return false
	}

	if prefs.MinPrice != nil && deal.Price.LessThan(*prefs.MinPrice) {
		return false
	}
	if prefs.MaxPrice != nil && deal.Price.GreaterThan(*prefs.MaxPrice) {
		return false
	}

	if prefs.MinDealScore != nil && deal.Score() < *prefs.MinDealScore {
		return false
	}
	if prefs.MinDiscountPercent != nil && deal.Discount() < *prefs.MinDiscountPercent {
		return false
	}

	entry, ok := findWatchlistEntry(watchlist, dealBrand, deal.Category)
	if !ok {
		return true
	}
	if entry.MaxPrice != nil && deal.Price.GreaterThan(*entry.MaxPrice) {
		return false
	}
	if !entry.NotifyAllDeals && deal.Score() < entry.MinDealScore {
		return false
	}
	return true
}

func containsAnyBrand(dealBrand string, brands []string) bool {
	for _, brand := range brands {
		if strings.Contains(dealBrand, strings.ToLower(brand)) {
			return true
		}
	}
	return false
}

func findWatchlistEntry(watchlist []domain.BrandWatchlistEntry, brand, category string) (domain.BrandWatchlistEntry, bool) {
	for _, entry := range watchlist {
		if entry.Brand == brand && entry.Category == category {
			return entry, true
		}
	}
	return domain.BrandWatchlistEntry{}, false
}

// IsQuietHours compares the time of day of now against the user's window. A window whose
// start is after its end wraps midnight. Missing or malformed bounds mean never quiet.
func IsQuietHours(prefs *domain.AlertPreference, now time.Time) bool {
	start, ok := ParseClock(prefs.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := ParseClock(prefs.QuietHoursEnd)
	if !ok {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	if start <= end {
		return current >= start && current < end
	}
	return current >= start || current < end
}

// ParseClock converts "HH:MM" (or Postgres "HH:MM:SS") into minutes since midnight.
func ParseClock(value string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
