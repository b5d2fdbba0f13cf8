package fetch

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/market-scanner/internal/model"
)

type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// ParseFeed parses an RSS 2.0 or Atom feed into news items. source labels
// where the items came from.
func ParseFeed(r io.Reader, source string) ([]model.NewsItem, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFeedBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read feed %s", source)
	}

	var rss rssDoc
	rssErr := decodeXML(data, &rss)
	if rssErr == nil {
		items := make([]model.NewsItem, 0, len(rss.Channel.Items))
		for _, it := range rss.Channel.Items {
			items = append(items, model.NewsItem{
				Title:     strings.TrimSpace(it.Title),
				Link:      strings.TrimSpace(it.Link),
				Source:    source,
				Summary:   strings.TrimSpace(it.Description),
				Published: parseFeedTime(it.PubDate),
			})
		}
		return items, nil
	}

	var atom atomDoc
	if err := decodeXML(data, &atom); err == nil {
		items := make([]model.NewsItem, 0, len(atom.Entries))
		for _, e := range atom.Entries {
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			items = append(items, model.NewsItem{
				Title:     strings.TrimSpace(e.Title),
				Link:      atomHref(e.Links),
				Source:    source,
				Summary:   strings.TrimSpace(e.Summary),
				Published: parseFeedTime(published),
			})
		}
		return items, nil
	}

	return nil, eris.Wrapf(rssErr, "fetch: parse feed %s", source)
}

// decodeXML decodes with charset support so latin-1 and friends survive.
func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec.Decode(v)
}

func atomHref(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

// feedTimeFormats covers the date shapes seen in the wild, padded and not.
var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseFeedTime parses a feed timestamp, returning the zero time when no
// format matches.
func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range feedTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
