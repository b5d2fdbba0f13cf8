package claude

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func TestComplete_MockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	req := Request{
		Model:     "claude-haiku-4-5-20251001",
		System:    "You are a market analyst.",
		Prompt:    "Analyze this market.",
		MaxTokens: 1024,
	}

	expected := &Response{
		ID:         "msg_123",
		Model:      "claude-haiku-4-5-20251001",
		Text:       `{"edge":0.08}`,
		StopReason: "end_turn",
		Usage: Usage{
			InputTokens:  320,
			OutputTokens: 44,
		},
	}

	mc.On("Complete", ctx, req).Return(expected, nil)

	resp, err := mc.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, `{"edge":0.08}`, resp.Text)
	assert.Equal(t, 320, resp.Usage.InputTokens)
	assert.Equal(t, 44, resp.Usage.OutputTokens)

	mc.AssertExpectations(t)
}

func TestExtractJSON_FencedJSON(t *testing.T) {
	text := "```json\n{\"edge\": 0.1, \"direction\": \"YES\"}\n```"
	assert.Equal(t, `{"edge": 0.1, "direction": "YES"}`, ExtractJSON(text))
}

func TestExtractJSON_BareFence(t *testing.T) {
	text := "```\n{\"edge\": 0.1}\n```"
	assert.Equal(t, `{"edge": 0.1}`, ExtractJSON(text))
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	text := "Here is my analysis:\n{\"edge\": 0.05, \"confidence\": 0.6}\nLet me know if you need more."
	assert.Equal(t, `{"edge": 0.05, "confidence": 0.6}`, ExtractJSON(text))
}

func TestExtractJSON_PlainObject(t *testing.T) {
	text := `{"edge": 0}`
	assert.Equal(t, `{"edge": 0}`, ExtractJSON(text))
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	text := `prefix {"outer": {"inner": 1}} suffix`
	assert.Equal(t, `{"outer": {"inner": 1}}`, ExtractJSON(text))
}

func TestExtractJSON_NoObject(t *testing.T) {
	assert.Equal(t, "no json here", ExtractJSON("  no json here  "))
}
