package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarketKey(t *testing.T) {
	m := Market{Platform: PlatformKalshi, ID: "FED-25DEC-T4.00"}
	assert.Equal(t, "kalshi:FED-25DEC-T4.00", m.Key())
}

func TestMarketClosesWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	close := now.Add(6 * time.Hour)
	m := Market{CloseTime: &close}
	assert.True(t, m.ClosesWithin(now, 12*time.Hour))
	assert.False(t, m.ClosesWithin(now, 3*time.Hour))

	// No close time: never closes soon.
	assert.False(t, Market{}.ClosesWithin(now, 24*time.Hour))

	// Already closed markets don't count.
	past := now.Add(-time.Hour)
	assert.False(t, Market{CloseTime: &past}.ClosesWithin(now, 24*time.Hour))
}

func TestEdgeDedupKey(t *testing.T) {
	m := Market{Platform: PlatformPolymarket, ID: "0xabc"}

	plain := Edge{Market: m, Signal: Signal{Type: SignalVenueDivergence}}
	assert.Equal(t, "polymarket:0xabc", plain.DedupKey())

	keyword := Edge{Market: m, Signal: Signal{
		Type:        SignalKeywordNews,
		KeywordNews: &KeywordNewsSignal{Keyword: "tariff"},
	}}
	assert.Equal(t, "polymarket:0xabc|tariff", keyword.DedupKey())

	custom := Edge{Market: m, Signal: Signal{
		Type:  SignalCustom,
		Extra: map[string]any{"subkey": "whale-wallet"},
	}}
	assert.Equal(t, "polymarket:0xabc|whale-wallet", custom.DedupKey())
}

func TestEdgeWeight(t *testing.T) {
	e := Edge{Edge: 0.2, Confidence: 0.9}
	assert.InDelta(t, 0.18, e.Weight(), 1e-9)
}

func TestTierRankOrdering(t *testing.T) {
	crit := Edge{Tier: TierCritical}
	act := Edge{Tier: TierActionable}
	watch := Edge{Tier: TierWatchlist}

	assert.Less(t, crit.TierRank(), act.TierRank())
	assert.Less(t, act.TierRank(), watch.TierRank())
}

func TestTableCol(t *testing.T) {
	tbl := Table{Columns: []string{"date", "event", "consensus"}}
	assert.Equal(t, 1, tbl.Col("event"))
	assert.Equal(t, -1, tbl.Col("actual"))
}
