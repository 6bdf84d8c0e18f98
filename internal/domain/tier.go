package domain

import "strings"

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

const freeTierDelayMinutes = 15

var tierDelays = map[Tier]int{
	TierFree:       freeTierDelayMinutes,
	TierPro:        0,
	TierPremium:    0,
	TierEnterprise: 0,
}

// Normalize maps unknown or empty tiers to free.
func (t Tier) Normalize() Tier {
	normalized := Tier(strings.ToLower(strings.TrimSpace(string(t))))
	if _, ok := tierDelays[normalized]; ok {
		return normalized
	}
	return TierFree
}

func (t Tier) AlertDelayMinutes() int {
	return tierDelays[t.Normalize()]
}
