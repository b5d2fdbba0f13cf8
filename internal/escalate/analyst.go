package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/cost"
	"github.com/sells-group/market-scanner/internal/enrich"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/pkg/claude"
)

// Analysis tiers.
const (
	TierScan = "scan"
	TierDeep = "deep"
)

// Verdict is one analysis tier's conclusion about a market.
type Verdict struct {
	Direction   model.Direction
	Edge        float64
	Confidence  float64
	Probability float64
	Reason      string
	Citations   []string
	Model       string
	Tier        string
	CostUSD     float64
}

// Usable reports whether the verdict carries a tradable signal.
func (v *Verdict) Usable(minEdge float64) bool {
	if v == nil || v.Edge < minEdge {
		return false
	}
	return v.Direction == model.DirectionYes || v.Direction == model.DirectionNo
}

// Analyst runs the two analysis tiers for a market. Implementations must
// respect ctx cancellation; the controller applies hard per-call timeouts.
// A non-nil Verdict alongside an error means money was spent before the
// failure and must still be billed.
type Analyst interface {
	Scan(ctx context.Context, m model.Market, snap pipeline.Snapshot) (*Verdict, error)
	Deep(ctx context.Context, m model.Market, snap pipeline.Snapshot) (*Verdict, error)
}

const (
	scanMaxTokens = 512
	deepMaxTokens = 1024
)

const analystSystem = `You are a prediction market analyst. Estimate the fair YES probability for the market you are given and decide whether the quoted price is mispriced.

Respond with only a JSON object, no prose:
{"direction":"YES or NO","probability":<fair YES probability, 0-1>,"edge":<expected profit per $1 contract, 0-1>,"confidence":<0-1>,"reasoning":"<one or two sentences>","citations":["<headline or figure you relied on>"]}

Direction YES means buy YES at the quoted price; NO means buy NO. Set edge to 0 when you see no clear mispricing.`

// ClaudeAnalyst implements Analyst with two Claude tiers: a cheap scan model
// for triage and a stronger deep model for confirmation.
type ClaudeAnalyst struct {
	client    claude.Client
	calc      *cost.Calculator
	scanModel string
	deepModel string
}

// NewClaudeAnalyst creates an analyst using the given models per tier.
func NewClaudeAnalyst(client claude.Client, calc *cost.Calculator, scanModel, deepModel string) *ClaudeAnalyst {
	return &ClaudeAnalyst{
		client:    client,
		calc:      calc,
		scanModel: scanModel,
		deepModel: deepModel,
	}
}

func (a *ClaudeAnalyst) Scan(ctx context.Context, m model.Market, snap pipeline.Snapshot) (*Verdict, error) {
	return a.analyze(ctx, m, snap, a.scanModel, TierScan)
}

func (a *ClaudeAnalyst) Deep(ctx context.Context, m model.Market, snap pipeline.Snapshot) (*Verdict, error) {
	return a.analyze(ctx, m, snap, a.deepModel, TierDeep)
}

func (a *ClaudeAnalyst) analyze(ctx context.Context, m model.Market, snap pipeline.Snapshot, modelID, tier string) (*Verdict, error) {
	maxTokens := int64(scanMaxTokens)
	if tier == TierDeep {
		maxTokens = deepMaxTokens
	}

	resp, err := a.client.Complete(ctx, claude.Request{
		Model:       modelID,
		System:      analystSystem,
		Prompt:      buildPrompt(m, NewTools(snap), tier == TierDeep),
		MaxTokens:   maxTokens,
		CacheSystem: true,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "escalate: %s tier", tier)
	}

	usd := a.calc.Claude(resp.Model,
		resp.Usage.InputTokens, resp.Usage.OutputTokens,
		resp.Usage.CacheWriteTokens, resp.Usage.CacheReadTokens)
	zap.L().Debug("escalate: tier complete",
		zap.String("market", m.Key()),
		zap.String("tier", tier),
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("cost_usd", usd),
	)

	v, err := parseVerdict(resp.Text)
	if err != nil {
		// Spend happened even though the output was garbage.
		return &Verdict{Model: resp.Model, Tier: tier, CostUSD: usd}, err
	}
	v.Model = resp.Model
	v.Tier = tier
	v.CostUSD = usd
	return v, nil
}

type verdictJSON struct {
	Direction   string   `json:"direction"`
	Probability float64  `json:"probability"`
	Edge        float64  `json:"edge"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Citations   []string `json:"citations"`
}

func parseVerdict(text string) (*Verdict, error) {
	var vj verdictJSON
	if err := json.Unmarshal([]byte(claude.ExtractJSON(text)), &vj); err != nil {
		return nil, eris.Wrap(err, "escalate: decode verdict")
	}
	return &Verdict{
		Direction:   model.Direction(strings.ToUpper(strings.TrimSpace(vj.Direction))),
		Edge:        clamp01(vj.Edge),
		Confidence:  clamp01(vj.Confidence),
		Probability: clamp01(vj.Probability),
		Reason:      strings.TrimSpace(vj.Reasoning),
		Citations:   vj.Citations,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildPrompt assembles the market block plus snapshot context. The deep
// tier gets more headlines, comparable markets, and topic sentiment.
func buildPrompt(m model.Market, tools *Tools, deep bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Market: %s\n", m.Title)
	fmt.Fprintf(&sb, "Venue: %s", m.Platform)
	if m.Ticker != "" {
		fmt.Fprintf(&sb, " (%s)", m.Ticker)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "YES price: %.3f\n", m.Price)
	if m.Volume > 0 {
		fmt.Fprintf(&sb, "Volume: $%.0f\n", m.Volume)
	}
	if m.Liquidity > 0 {
		fmt.Fprintf(&sb, "Liquidity: $%.0f\n", m.Liquidity)
	}
	if m.CloseTime != nil {
		fmt.Fprintf(&sb, "Closes: %s\n", m.CloseTime.UTC().Format("2006-01-02 15:04 MST"))
	}
	if m.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", m.Category)
	}

	terms := enrich.Terms(m.Title)

	headlineCap := 5
	if deep {
		headlineCap = 12
	}
	if headlines := tools.Headlines(terms, headlineCap); len(headlines) > 0 {
		sb.WriteString("\nRecent headlines:\n")
		for _, h := range headlines {
			fmt.Fprintf(&sb, "- %s", h.Title)
			if h.Source != "" {
				fmt.Fprintf(&sb, " (%s)", h.Source)
			}
			sb.WriteString("\n")
		}
	}

	if deep {
		if similar := tools.SimilarMarkets(m, 5); len(similar) > 0 {
			sb.WriteString("\nRelated markets:\n")
			for _, s := range similar {
				fmt.Fprintf(&sb, "- %s @ %.3f (%s, vol $%.0f)\n", s.Title, s.Price, s.Platform, s.Volume)
			}
		}
		if score, n := tools.TopicSentiment(terms); n > 0 {
			fmt.Fprintf(&sb, "\nHeadline sentiment: %+.2f across %d items\n", score, n)
		}
		if u, ok := tools.Universe(); ok && u.Total > 0 {
			fmt.Fprintf(&sb, "\nUniverse: %d markets, $%.0f total volume, mean YES %.3f\n",
				u.Total, u.TotalVolume, u.AvgPrice)
		}
	}

	sb.WriteString("\nIs the quoted YES price mispriced?")
	return sb.String()
}
