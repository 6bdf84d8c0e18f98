// Package memory holds mutex-guarded in-process repositories used when STORAGE_DRIVER is
// "memory" and by the usecase tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
)

type PreferenceStore struct {
	mu     sync.RWMutex
	byUser map[string]*domain.AlertPreference
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{byUser: make(map[string]*domain.AlertPreference)}
}

func (s *PreferenceStore) GetByUserID(ctx context.Context, userID string) (*domain.AlertPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePreference(pref), nil
}

func (s *PreferenceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AlertPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pref := range s.byUser {
		if pref.ID == id {
			return clonePreference(pref), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *PreferenceStore) Save(ctx context.Context, pref *domain.AlertPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.byUser[pref.UserID]; ok {
		pref.ID = existing.ID
		pref.CreatedAt = existing.CreatedAt
	}
	if pref.ID == uuid.Nil {
		pref.ID = uuid.New()
	}
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = now
	}
	pref.UpdatedAt = now
	s.byUser[pref.UserID] = clonePreference(pref)
	return nil
}

// Delete removes the user's preferences. Queue rows referencing them are left dangling.
func (s *PreferenceStore) Delete(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}

func (s *PreferenceStore) ListWithAlertsEnabled(ctx context.Context) ([]domain.AlertPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := make([]domain.AlertPreference, 0, len(s.byUser))
	for _, pref := range s.byUser {
		if pref.AnyChannelEnabled() {
			prefs = append(prefs, *clonePreference(pref))
		}
	}
	slices.SortFunc(prefs, func(a, b domain.AlertPreference) int { return strings.Compare(a.UserID, b.UserID) })
	return prefs, nil
}

func (s *PreferenceStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byUser)), nil
}

func clonePreference(pref *domain.AlertPreference) *domain.AlertPreference {
	c := *pref
	c.Categories = slices.Clone(pref.Categories)
	c.Brands = slices.Clone(pref.Brands)
	c.WebhookHeaders = maps.Clone(pref.WebhookHeaders)
	return &c
}

type WatchlistStore struct {
	mu      sync.RWMutex
	entries map[string]domain.BrandWatchlistEntry
}

func NewWatchlistStore() *WatchlistStore {
	return &WatchlistStore{entries: make(map[string]domain.BrandWatchlistEntry)}
}

func watchlistKey(userID, brand, category string) string {
	return userID + "\x00" + brand + "\x00" + category
}

func (s *WatchlistStore) ListByUser(ctx context.Context, userID string) ([]domain.BrandWatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.BrandWatchlistEntry, 0)
	for _, entry := range s.entries {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b domain.BrandWatchlistEntry) int {
		return cmp.Or(strings.Compare(a.Brand, b.Brand), strings.Compare(a.Category, b.Category))
	})
	return entries, nil
}

func (s *WatchlistStore) Upsert(ctx context.Context, entry *domain.BrandWatchlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	key := watchlistKey(entry.UserID, entry.Brand, entry.Category)
	if existing, ok := s.entries[key]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.ID = uuid.New()
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	s.entries[key] = *entry
	return nil
}

func (s *WatchlistStore) Delete(ctx context.Context, userID, brand, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := watchlistKey(userID, brand, category)
	if _, ok := s.entries[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

type QueueStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domain.QueueItem
	now   func() time.Time
}

func NewQueueStore() *QueueStore {
	return &QueueStore{items: make(map[uuid.UUID]*domain.QueueItem), now: time.Now}
}

// SetClock replaces the time source used for created_at.
func (s *QueueStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *QueueStore) Enqueue(ctx context.Context, item *domain.QueueItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.UserID == item.UserID && existing.DealID == item.DealID && existing.Channel == item.Channel {
			return false, nil
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	stored := *item
	s.items[item.ID] = &stored
	return true, nil
}

func (s *QueueStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]domain.QueueItem, 0)
	for _, item := range s.items {
		if item.Due(now) {
			due = append(due, *item)
		}
	}
	slices.SortFunc(due, func(a, b domain.QueueItem) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *QueueStore) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.Status = domain.StatusDelivered
	item.DeliveredAt = &deliveredAt
	item.DeliveryError = ""
	return nil
}

func (s *QueueStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.Status = domain.StatusFailed
	item.DeliveryError = reason
	if terminal {
		item.RetryCount = domain.MaxDeliveryAttempts
	} else {
		item.RetryCount++
	}
	return nil
}

func (s *QueueStore) ListPendingByUser(ctx context.Context, userID string, limit int) ([]domain.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]domain.QueueItem, 0)
	for _, item := range s.items {
		if item.UserID == userID && isUndelivered(item.Status) {
			pending = append(pending, *item)
		}
	}
	slices.SortFunc(pending, func(a, b domain.QueueItem) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *QueueStore) CountPending(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, item := range s.items {
		if (userID == "" || item.UserID == userID) && isUndelivered(item.Status) {
			count++
		}
	}
	return count, nil
}

func (s *QueueStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, item := range s.items {
		if slices.Contains(domain.TerminalStatuses, item.Status) && item.CreatedAt.Before(cutoff) {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

// Get returns a copy of one queue row.
func (s *QueueStore) Get(id uuid.UUID) (domain.QueueItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return domain.QueueItem{}, false
	}
	return *item, true
}

// All returns copies of every row ordered by scheduled_at.
func (s *QueueStore) All() []domain.QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.QueueItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	slices.SortFunc(items, func(a, b domain.QueueItem) int {
		return cmp.Or(a.ScheduledAt.Compare(b.ScheduledAt), strings.Compare(string(a.Channel), string(b.Channel)))
	})
	return items
}

func isUndelivered(status domain.DeliveryStatus) bool {
	return status == domain.StatusPending || status == domain.StatusReady
}

type DeliveryLogStore struct {
	mu      sync.RWMutex
	entries []domain.DeliveryLogEntry
}

func NewDeliveryLogStore() *DeliveryLogStore {
	return &DeliveryLogStore{}
}

func (s *DeliveryLogStore) Append(ctx context.Context, entry *domain.DeliveryLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *DeliveryLogStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]domain.DeliveryLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.DeliveryLogEntry, 0)
	for _, entry := range s.entries {
		if entry.UserID == userID && !entry.DeliveredAt.Before(since) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *DeliveryLogStore) ListRecentByUser(ctx context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.DeliveryLogEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID != userID {
			continue
		}
		entries = append(entries, s.entries[i])
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (s *DeliveryLogStore) CountDelivered(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, entry := range s.entries {
		if entry.Succeeded() {
			count++
		}
	}
	return count, nil
}

// All returns a copy of the log in append order.
func (s *DeliveryLogStore) All() []domain.DeliveryLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}
