package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// PreferenceUpdate is a partial update of a user's alert settings. Nil fields are left as
// they are; an empty string clears a text field.
type PreferenceUpdate struct {
	EmailEnabled *bool   `json:"email_enabled"`
	EmailAddress *string `json:"email_address" validate:"omitempty,email"`

	TelegramEnabled  *bool   `json:"telegram_enabled"`
	TelegramChatID   *string `json:"telegram_chat_id" validate:"omitempty,max=64"`
	TelegramBotToken *string `json:"telegram_bot_token" validate:"omitempty,max=128"`

	DiscordEnabled    *bool   `json:"discord_enabled"`
	DiscordWebhookURL *string `json:"discord_webhook_url" validate:"omitempty,url,startswith=https://discord.com/api/webhooks/"`

	WebhookEnabled *bool             `json:"custom_webhook_enabled"`
	WebhookURL     *string           `json:"custom_webhook_url" validate:"omitempty,http_url"`
	WebhookHeaders map[string]string `json:"custom_webhook_headers"`

	Categories         *[]string        `json:"categories"`
	Brands             *[]string        `json:"brands" validate:"omitempty,dive,max=100"`
	MinPrice           *decimal.Decimal `json:"min_price"`
	MaxPrice           *decimal.Decimal `json:"max_price"`
	MinDealScore       *int             `json:"min_deal_score" validate:"omitempty,min=0,max=100"`
	MinDiscountPercent *float64         `json:"min_discount_percent" validate:"omitempty,min=0,max=100"`

	QuietHoursStart *string `json:"quiet_hours_start" validate:"omitempty,clock"`
	QuietHoursEnd   *string `json:"quiet_hours_end" validate:"omitempty,clock"`

	// ClearPriceBounds and ClearScores drop the numeric filters that are nil in the update.
	ClearPriceBounds bool `json:"clear_price_bounds"`
	ClearScores      bool `json:"clear_scores"`
}

func (p *PreferenceUpdate) textFields() []**string {
	return []**string{
		&p.EmailAddress,
		&p.TelegramChatID,
		&p.TelegramBotToken,
		&p.DiscordWebhookURL,
		&p.WebhookURL,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
	}
}

func (p *PreferenceUpdate) trimText() {
	for _, field := range p.textFields() {
		if *field != nil {
			trimmed := strings.TrimSpace(**field)
			*field = &trimmed
		}
	}
}

// withoutClears returns a copy with empty text fields set to nil so omitempty skips them
// during validation. validator treats a pointer to "" as a value.
func withoutClears(update PreferenceUpdate) PreferenceUpdate {
	for _, field := range update.textFields() {
		if *field != nil && **field == "" {
			*field = nil
		}
	}
	return update
}

type WatchlistInput struct {
	Brand          string           `json:"brand" validate:"required,max=100"`
	Category       string           `json:"category" validate:"required"`
	MinDealScore   *int             `json:"min_deal_score" validate:"omitempty,min=0,max=100"`
	MaxPrice       *decimal.Decimal `json:"max_price"`
	NotifyAllDeals bool             `json:"notify_all_deals"`
}

type PreferenceUsecase struct {
	prefs      domain.PreferenceRepository
	watchlist  domain.WatchlistRepository
	categories []string
	validate   *validator.Validate
}

func NewPreferenceUsecase(prefs domain.PreferenceRepository, watchlist domain.WatchlistRepository, categories []string) *PreferenceUsecase {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, ok := ParseClock(fl.Field().String())
		return ok
	})

	sorted := slices.Clone(categories)
	slices.Sort(sorted)
	return &PreferenceUsecase{prefs: prefs, watchlist: watchlist, categories: sorted, validate: v}
}

// Categories lists the listing categories users may filter or watch.
func (u *PreferenceUsecase) Categories() []string {
	return u.categories
}

// GetPreferences returns the stored settings or, when the user has none, unsaved defaults.
func (u *PreferenceUsecase) GetPreferences(ctx context.Context, userID string) (*domain.AlertPreference, error) {
	pref, err := u.prefs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewAlertPreference(userID), nil
		}
		return nil, err
	}
	return pref, nil
}

// UpsertPreferences applies update on top of the stored settings and saves them. The user's
// tier, and with it the alert delay, is never taken from the update.
func (u *PreferenceUsecase) UpsertPreferences(ctx context.Context, userID string, update PreferenceUpdate) (*domain.AlertPreference, error) {
	update.trimText()
	if err := u.check(withoutClears(update)); err != nil {
		return nil, err
	}
	if err := u.checkUpdate(update); err != nil {
		return nil, err
	}

	pref, err := u.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	applyUpdate(pref, update)

	if pref.MinPrice != nil && pref.MaxPrice != nil && pref.MinPrice.GreaterThan(*pref.MaxPrice) {
		return nil, &domain.ValidationError{Field: "min_price", Message: "must not exceed max_price"}
	}

	if err := u.prefs.Save(ctx, pref); err != nil {
		return nil, fmt.Errorf("save preferences for user %s: %w", userID, err)
	}
	return pref, nil
}

// UpdateTier records the user's subscription tier and re-derives the alert delay.
func (u *PreferenceUsecase) UpdateTier(ctx context.Context, userID string, tier domain.Tier) (*domain.AlertPreference, error) {
	pref, err := u.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	pref.ApplyTier(tier)
	if err := u.prefs.Save(ctx, pref); err != nil {
		return nil, fmt.Errorf("save tier for user %s: %w", userID, err)
	}
	return pref, nil
}

func (u *PreferenceUsecase) ListWatchlist(ctx context.Context, userID string) ([]domain.BrandWatchlistEntry, error) {
	return u.watchlist.ListByUser(ctx, userID)
}

// AddToWatchlist creates or replaces the entry for (brand, category). Brands are stored
// lowercased.
func (u *PreferenceUsecase) AddToWatchlist(ctx context.Context, userID string, input WatchlistInput) (*domain.BrandWatchlistEntry, error) {
	input.Brand = strings.ToLower(strings.TrimSpace(input.Brand))
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	if err := u.check(input); err != nil {
		return nil, err
	}
	if !slices.Contains(u.categories, input.Category) {
		return nil, &domain.ValidationError{Field: "category", Message: "must be one of " + strings.Join(u.categories, ", ")}
	}
	if input.MaxPrice != nil && input.MaxPrice.IsNegative() {
		return nil, &domain.ValidationError{Field: "max_price", Message: "must not be negative"}
	}

	entry := &domain.BrandWatchlistEntry{
		UserID:         userID,
		Brand:          input.Brand,
		Category:       input.Category,
		MinDealScore:   domain.DefaultWatchlistMinDealScore,
		MaxPrice:       input.MaxPrice,
		NotifyAllDeals: input.NotifyAllDeals,
	}
	if input.MinDealScore != nil {
		entry.MinDealScore = *input.MinDealScore
	}

	if err := u.watchlist.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("upsert watchlist for user %s: %w", userID, err)
	}
	return entry, nil
}

func (u *PreferenceUsecase) RemoveFromWatchlist(ctx context.Context, userID, brand, category string) error {
	return u.watchlist.Delete(ctx, userID, strings.ToLower(strings.TrimSpace(brand)), strings.ToLower(strings.TrimSpace(category)))
}

func (u *PreferenceUsecase) check(input any) error {
	err := u.validate.Struct(input)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return &domain.ValidationError{Field: fe.Field(), Message: validationMessage(fe)}
	}
	return err
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return "must be a valid email address"
	case "startswith":
		return "must start with " + fe.Param()
	case "url", "http_url":
		return "must be an absolute http(s) URL"
	case "clock":
		return "must be HH:MM"
	case "required":
		return "is required"
	case "min", "max":
		return fmt.Sprintf("failed on '%s=%s' validation", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

func (u *PreferenceUsecase) checkUpdate(update PreferenceUpdate) error {
	if update.Categories != nil {
		for _, category := range *update.Categories {
			if !slices.Contains(u.categories, category) {
				return &domain.ValidationError{Field: "categories", Message: "unknown category " + category}
			}
		}
	}
	if update.MinPrice != nil && update.MinPrice.IsNegative() {
		return &domain.ValidationError{Field: "min_price", Message: "must not be negative"}
	}
	if update.MaxPrice != nil && update.MaxPrice.IsNegative() {
		return &domain.ValidationError{Field: "max_price", Message: "must not be negative"}
	}
	return nil
}

func applyUpdate(pref *domain.AlertPreference, update PreferenceUpdate) {
	setBool(&pref.EmailEnabled, update.EmailEnabled)
	setString(&pref.EmailAddress, update.EmailAddress)
	setBool(&pref.TelegramEnabled, update.TelegramEnabled)
	setString(&pref.TelegramChatID, update.TelegramChatID)
	setString(&pref.TelegramBotToken, update.TelegramBotToken)
	setBool(&pref.DiscordEnabled, update.DiscordEnabled)
	setString(&pref.DiscordWebhookURL, update.DiscordWebhookURL)
	setBool(&pref.WebhookEnabled, update.WebhookEnabled)
	setString(&pref.WebhookURL, update.WebhookURL)
	if update.WebhookHeaders != nil {
		pref.WebhookHeaders = update.WebhookHeaders
	}

	if update.Categories != nil {
		pref.Categories = *update.Categories
	}
	if update.Brands != nil {
		brands := make([]string, 0, len(*update.Brands))
		for _, brand := range *update.Brands {
			if brand = strings.TrimSpace(brand); brand != "" {
				brands = append(brands, brand)
			}
		}
		pref.Brands = brands
	}

	if update.ClearPriceBounds {
		pref.MinPrice, pref.MaxPrice = nil, nil
	}
	if update.MinPrice != nil {
		pref.MinPrice = update.MinPrice
	}
	if update.MaxPrice != nil {
		pref.MaxPrice = update.MaxPrice
	}

	if update.ClearScores {
		pref.MinDealScore, pref.MinDiscountPercent = nil, nil
	}
	if update.MinDealScore != nil {
		pref.MinDealScore = update.MinDealScore
	}
	if update.MinDiscountPercent != nil {
		pref.MinDiscountPercent = update.MinDiscountPercent
	}

	setString(&pref.QuietHoursStart, update.QuietHoursStart)
	setString(&pref.QuietHoursEnd, update.QuietHoursEnd)
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
