package fetch

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// maxFeedBytes bounds any single feed payload.
const maxFeedBytes = 32 << 20

// Spec describes one configured reference feed: where it lives, how to
// parse it, and how it enters the pipeline.
type Spec struct {
	Name         string `yaml:"name" mapstructure:"name"`
	URL          string `yaml:"url" mapstructure:"url"`
	Format       string `yaml:"format" mapstructure:"format"` // csv, json, rss, xlsx
	Category     string `yaml:"category" mapstructure:"category"`
	TTLMinutes   int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	ArchiveEntry string `yaml:"archive_entry" mapstructure:"archive_entry"`
	Delimiter    string `yaml:"delimiter" mapstructure:"delimiter"`
	Sheet        string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows     int    `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// Validate reports configuration mistakes a run would otherwise only hit at
// fetch time.
func (s Spec) Validate() error {
	if s.Name == "" {
		return eris.New("fetch: feed name required")
	}
	if s.URL == "" {
		return eris.Errorf("fetch: feed %s: url required", s.Name)
	}
	switch strings.ToLower(s.Format) {
	case "csv", "json", "rss", "xlsx":
		return nil
	default:
		return eris.Errorf("fetch: feed %s: unknown format %q", s.Name, s.Format)
	}
}

// ResolvedCategory returns the effective source category: the declared one,
// or news for RSS feeds, or reference.
func (s Spec) ResolvedCategory() model.SourceCategory {
	switch s.Category {
	case string(model.CategoryMarketData):
		return model.CategoryMarketData
	case string(model.CategoryNews):
		return model.CategoryNews
	case string(model.CategoryReference):
		return model.CategoryReference
	}
	if strings.EqualFold(s.Format, "rss") {
		return model.CategoryNews
	}
	return model.CategoryReference
}

func (s Spec) ttl() time.Duration {
	if s.TTLMinutes > 0 {
		return time.Duration(s.TTLMinutes) * time.Minute
	}
	return time.Hour
}

// Client bundles the transports feeds share.
type Client struct {
	http *HTTP
	ftp  *FTP
}

// NewClient creates a feed client over the given transports.
func NewClient(httpc *HTTP, ftpc *FTP) *Client {
	return &Client{http: httpc, ftp: ftpc}
}

// Open dispatches on the URL scheme.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return c.http.Fetch(ctx, rawURL)
	case "ftp":
		return c.ftp.Fetch(ctx, rawURL)
	default:
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}

// Source builds the pipeline source for this feed.
func (s Spec) Source(c *Client) pipeline.Source {
	return pipeline.NewSource(s.Name, s.ResolvedCategory(), s.ttl(), func(ctx context.Context) (any, error) {
		return s.fetch(ctx, c)
	})
}

func (s Spec) fetch(ctx context.Context, c *Client) (any, error) {
	rc, err := c.Open(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, maxFeedBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read feed %s", s.Name)
	}

	if s.ArchiveEntry != "" || strings.HasSuffix(strings.ToLower(s.URL), ".zip") {
		data, err = ArchiveEntry(data, s.ArchiveEntry)
		if err != nil {
			return nil, err
		}
	}

	switch strings.ToLower(s.Format) {
	case "csv":
		opts := CSVOptions{TrimSpace: true, SkipRows: s.SkipRows}
		if s.Delimiter != "" {
			opts.Delimiter = rune(s.Delimiter[0])
		}
		return ParseCSV(bytes.NewReader(data), opts)
	case "xlsx":
		return ParseXLSX(data, XLSXOptions{SheetName: s.Sheet, SkipRows: s.SkipRows})
	case "rss":
		return ParseFeed(bytes.NewReader(data), s.Name)
	case "json":
		return ParseJSON(bytes.NewReader(data))
	default:
		return nil, eris.Errorf("fetch: feed %s: unknown format %q", s.Name, s.Format)
	}
}
