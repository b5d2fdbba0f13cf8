package escalate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/cost"
	"github.com/sells-group/market-scanner/internal/enrich"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/pkg/claude"
)

// stubClaude scripts one completion and records the request it saw.
type stubClaude struct {
	resp *claude.Response
	err  error
	got  claude.Request
}

func (s *stubClaude) Complete(_ context.Context, req claude.Request) (*claude.Response, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func testCalc() *cost.Calculator {
	return cost.NewCalculator(cost.Rates{Anthropic: map[string]cost.ModelRate{
		"scan-model": {Input: 1.00, Output: 2.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"deep-model": {Input: 10.00, Output: 20.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	}})
}

func fedMarket() model.Market {
	closeAt := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	return model.Market{
		Platform:  model.PlatformKalshi,
		ID:        "FED-26SEP",
		Ticker:    "FED-26SEP-T4.00",
		Title:     "Fed cuts rates in September?",
		Price:     0.62,
		Volume:    125000,
		CloseTime: &closeAt,
	}
}

func TestClaudeAnalystScan(t *testing.T) {
	stub := &stubClaude{resp: &claude.Response{
		Model: "scan-model",
		Text:  `{"direction":"yes","probability":0.71,"edge":0.09,"confidence":0.6,"reasoning":"CPI came in soft","citations":["CPI report"]}`,
		Usage: claude.Usage{InputTokens: 1_000_000, OutputTokens: 500_000},
	}}
	a := NewClaudeAnalyst(stub, testCalc(), "scan-model", "deep-model")

	v, err := a.Scan(context.Background(), fedMarket(), pipeline.Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, model.DirectionYes, v.Direction)
	assert.InDelta(t, 0.09, v.Edge, 1e-9)
	assert.InDelta(t, 0.71, v.Probability, 1e-9)
	assert.Equal(t, "CPI came in soft", v.Reason)
	assert.Equal(t, []string{"CPI report"}, v.Citations)
	assert.Equal(t, "scan-model", v.Model)
	assert.Equal(t, TierScan, v.Tier)
	// 1M input at $1/MTok plus 0.5M output at $2/MTok.
	assert.InDelta(t, 2.00, v.CostUSD, 1e-9)

	assert.Equal(t, "scan-model", stub.got.Model)
	assert.Equal(t, int64(scanMaxTokens), stub.got.MaxTokens)
	assert.True(t, stub.got.CacheSystem)
	assert.Contains(t, stub.got.Prompt, "Fed cuts rates in September?")
	assert.Contains(t, stub.got.Prompt, "YES price: 0.620")
}

func TestClaudeAnalystDeepUsesDeepModel(t *testing.T) {
	stub := &stubClaude{resp: &claude.Response{
		Model: "deep-model",
		Text:  `{"direction":"NO","probability":0.4,"edge":0.15,"confidence":0.8,"reasoning":"priced too high"}`,
	}}
	a := NewClaudeAnalyst(stub, testCalc(), "scan-model", "deep-model")

	v, err := a.Deep(context.Background(), fedMarket(), pipeline.Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, "deep-model", stub.got.Model)
	assert.Equal(t, int64(deepMaxTokens), stub.got.MaxTokens)
	assert.Equal(t, model.DirectionNo, v.Direction)
	assert.Equal(t, TierDeep, v.Tier)
}

func TestClaudeAnalystGarbageOutputStillBillsCost(t *testing.T) {
	stub := &stubClaude{resp: &claude.Response{
		Model: "scan-model",
		Text:  "I am unable to analyze this market.",
		Usage: claude.Usage{InputTokens: 1_000_000},
	}}
	a := NewClaudeAnalyst(stub, testCalc(), "scan-model", "deep-model")

	v, err := a.Scan(context.Background(), fedMarket(), pipeline.Snapshot{})
	require.Error(t, err)
	require.NotNil(t, v, "spend must be billable even when the output is garbage")
	assert.InDelta(t, 1.00, v.CostUSD, 1e-9)
	assert.False(t, v.Usable(0.01))
}

func TestClaudeAnalystClientError(t *testing.T) {
	stub := &stubClaude{err: errors.New("api: overloaded")}
	a := NewClaudeAnalyst(stub, testCalc(), "scan-model", "deep-model")

	v, err := a.Scan(context.Background(), fedMarket(), pipeline.Snapshot{})
	require.Error(t, err)
	assert.Nil(t, v)
}

func TestParseVerdictFencedAndClamped(t *testing.T) {
	v, err := parseVerdict("```json\n{\"direction\":\" no \",\"probability\":1.4,\"edge\":2.0,\"confidence\":-0.3}\n```")
	require.NoError(t, err)

	assert.Equal(t, model.DirectionNo, v.Direction)
	assert.Equal(t, 1.0, v.Probability)
	assert.Equal(t, 1.0, v.Edge)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestVerdictUsable(t *testing.T) {
	var nilV *Verdict
	assert.False(t, nilV.Usable(0.04))

	assert.False(t, (&Verdict{Direction: model.DirectionYes, Edge: 0.02}).Usable(0.04))
	assert.False(t, (&Verdict{Direction: "MAYBE", Edge: 0.2}).Usable(0.04))
	assert.True(t, (&Verdict{Direction: model.DirectionNo, Edge: 0.04}).Usable(0.04))
}

func TestBuildPromptDeepAddsContext(t *testing.T) {
	m := fedMarket()
	snap := pipeline.Snapshot{
		Data: pipeline.SourceData{
			"news": []model.NewsItem{
				{Title: "Fed signals patience on rates", Source: "reuters"},
			},
		},
		Markets: []model.Market{
			m,
			{Platform: model.PlatformPolymarket, ID: "p1", Title: "Fed cuts rates by October?", Price: 0.55, Volume: 40000},
		},
	}
	tools := NewTools(snap)

	scan := buildPrompt(m, tools, false)
	assert.Contains(t, scan, "Recent headlines:")
	assert.NotContains(t, scan, "Related markets:")

	deep := buildPrompt(m, tools, true)
	assert.Contains(t, deep, "Related markets:")
	assert.True(t, strings.Contains(deep, "Fed cuts rates by October?"))
}

func TestBuildPromptDeepIncludesUniverse(t *testing.T) {
	m := fedMarket()
	snap := pipeline.Snapshot{
		Data: pipeline.SourceData{
			enrich.StatsKey: enrich.Stats{Total: 420, TotalVolume: 1250000, AvgPrice: 0.41},
		},
		Markets: []model.Market{m},
	}
	tools := NewTools(snap)

	deep := buildPrompt(m, tools, true)
	assert.Contains(t, deep, "Universe: 420 markets, $1250000 total volume, mean YES 0.410")

	scan := buildPrompt(m, tools, false)
	assert.NotContains(t, scan, "Universe:")
}
