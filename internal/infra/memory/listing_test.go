package memory

import (
	"context"
	"testing"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(id, category string, score int) domain.Deal {
	return domain.Deal{ID: id, Category: category, Brand: "Rolex", Price: decimal.NewFromInt(1000), DealScore: &score}
}

func TestFindHotDealsTagsTableCategory(t *testing.T) {
	store := NewListingStore()
	store.Add("watch_listings", scored("w1", "", 90), scored("w2", "jewelry", 85), scored("w3", "watches", 40))

	deals, err := store.FindHotDeals(context.Background(), domain.HotDealQuery{
		Table:    "watch_listings",
		Category: "watches",
		MinScore: 80,
		Since:    time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "w1", deals[0].ID)
	assert.Equal(t, "w2", deals[1].ID)
	for _, deal := range deals {
		assert.Equal(t, "watches", deal.Category)
	}
}
