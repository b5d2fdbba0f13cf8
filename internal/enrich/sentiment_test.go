package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"all positive", "Markets rally after strong jobs report", 1.0},
		{"all negative", "Stocks fall as banks fail", -1.0},
		{"mixed", "Senate to approve bill after talks collapse", 0.0},
		{"no lexicon hits", "Quiet day in markets", 0.0},
		{"empty", "", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.text), 1e-9)
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"fed", "cuts", "rates", "by", "0", "25"},
		Tokenize("Fed cuts rates by 0.25%!"),
	)
}

func TestSentimentProcessor(t *testing.T) {
	proc := NewSentimentProcessor([]string{"fed", "bitcoin"}, []string{"wire"})

	assert.Equal(t, "topic-sentiment", proc.Name())
	assert.Equal(t, []string{"wire"}, proc.Inputs())
	assert.Equal(t, "topic_sentiment", proc.OutputKey())

	data := pipeline.SourceData{
		"wire": []model.NewsItem{
			{Title: "Fed rally continues"},
			{Title: "Fed outlook steady"},
			{Title: "Champions League final tonight"},
		},
	}
	out, err := proc.Process(context.Background(), data)
	require.NoError(t, err)

	scores, ok := out.(map[string]float64)
	require.True(t, ok)
	assert.InDelta(t, 0.5, scores["fed"], 1e-9)
	_, hasBitcoin := scores["bitcoin"]
	assert.False(t, hasBitcoin, "topics with no matching headlines are omitted")
}

func TestSentimentProcessorMissingInput(t *testing.T) {
	proc := NewSentimentProcessor([]string{"fed"}, []string{"wire"})

	out, err := proc.Process(context.Background(), pipeline.SourceData{})
	require.NoError(t, err)
	assert.Empty(t, out.(map[string]float64))
}
