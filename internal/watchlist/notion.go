package watchlist

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is the Notion operation the loader needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// notionClient wraps *notionapi.Client with Notion's 3 req/s rate limit.
type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionClient creates a rate-limited Notion client from an integration
// token.
func NewNotionClient(token string) Client {
	return &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "watchlist: rate limit")
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("watchlist: query database %s", dbID))
	}
	return resp, nil
}

// LoadNotion queries the watchlist database for active topics, following
// pagination. Malformed pages are skipped with a warning, never fatal.
func LoadNotion(ctx context.Context, client Client, dbID string) (*Watchlist, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}

	var topics []Topic
	for {
		resp, err := client.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "watchlist: load topics")
		}

		for _, p := range resp.Results {
			t, err := parseTopicPage(p)
			if err != nil {
				zap.L().Warn("watchlist: skipping malformed topic page",
					zap.String("page_id", string(p.ID)),
					zap.Error(err),
				)
				continue
			}
			topics = append(topics, t)
		}

		if !resp.HasMore {
			break
		}
		req = &notionapi.DatabaseQueryRequest{
			Filter:      req.Filter,
			StartCursor: resp.NextCursor,
		}
	}

	return New(topics), nil
}

func parseTopicPage(p notionapi.Page) (Topic, error) {
	var t Topic

	// Topic (title)
	if prop, ok := p.Properties["Topic"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			t.Name = plainText(tp.Title)
		}
	}

	// Keywords (multi_select)
	if prop, ok := p.Properties["Keywords"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				t.Keywords = append(t.Keywords, opt.Name)
			}
		}
	}

	// Boost (number)
	if prop, ok := p.Properties["Boost"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			t.Boost = np.Number
		}
	}

	if t.Name == "" {
		return t, eris.New("missing Topic property")
	}
	if len(t.Keywords) == 0 {
		return t, eris.New("no keywords")
	}

	return t, nil
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var s string
	for _, rt := range rts {
		s += rt.PlainText
	}
	return s
}
