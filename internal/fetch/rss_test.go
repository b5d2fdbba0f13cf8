package fetch

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Example Business News</title>
<item>
  <title>Fed holds rates steady</title>
  <link>https://news.example.com/fed-holds</link>
  <description>The central bank left its target range unchanged.</description>
  <pubDate>Mon, 24 Aug 2026 14:30:00 +0000</pubDate>
</item>
<item>
  <title> Oil futures slump </title>
  <link>https://news.example.com/oil</link>
  <description>Crude fell three percent.</description>
  <pubDate>Mon, 24 Aug 2026 09:15:00 +0000</pubDate>
</item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom Wire</title>
  <entry>
    <title>CPI release date moved</title>
    <link rel="self" href="https://atom.example.com/entry/1/self"/>
    <link rel="alternate" href="https://atom.example.com/cpi"/>
    <summary>The release calendar shifted by one day.</summary>
    <published>2026-08-24T10:00:00Z</published>
  </entry>
  <entry>
    <title>Jobs report beats forecasts</title>
    <link href="https://atom.example.com/jobs"/>
    <summary>Payrolls topped every estimate.</summary>
    <updated>2026-08-23T12:00:00Z</updated>
  </entry>
</feed>`

func TestParseFeed_RSS(t *testing.T) {
	items, err := ParseFeed(strings.NewReader(rssFixture), "example-news")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Fed holds rates steady", items[0].Title)
	assert.Equal(t, "https://news.example.com/fed-holds", items[0].Link)
	assert.Equal(t, "example-news", items[0].Source)
	assert.Equal(t, "The central bank left its target range unchanged.", items[0].Summary)
	assert.Equal(t, "2026-08-24T14:30:00Z", items[0].Published.Format(time.RFC3339))

	assert.Equal(t, "Oil futures slump", items[1].Title)
}

func TestParseFeed_Atom(t *testing.T) {
	items, err := ParseFeed(strings.NewReader(atomFixture), "atom-wire")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "CPI release date moved", items[0].Title)
	assert.Equal(t, "https://atom.example.com/cpi", items[0].Link)
	assert.Equal(t, "2026-08-24T10:00:00Z", items[0].Published.Format(time.RFC3339))

	assert.Equal(t, "Jobs report beats forecasts", items[1].Title)
	assert.Equal(t, "https://atom.example.com/jobs", items[1].Link)
	assert.Equal(t, "2026-08-23T12:00:00Z", items[1].Published.Format(time.RFC3339))
}

func TestParseFeed_Latin1Charset(t *testing.T) {
	raw := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<rss version=\"2.0\"><channel><item>" +
		"<title>Caf\xe9 chain expands</title>" +
		"<link>https://news.example.com/cafe</link>" +
		"</item></channel></rss>")

	items, err := ParseFeed(bytes.NewReader(raw), "latin-feed")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Café chain expands", items[0].Title)
}

func TestParseFeed_BadXML(t *testing.T) {
	_, err := ParseFeed(strings.NewReader("not xml at all"), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse feed broken")
}

func TestParseFeed_UnparseableDateLeavesZeroTime(t *testing.T) {
	feed := `<rss version="2.0"><channel><item>
		<title>Timeless item</title>
		<pubDate>sometime last week</pubDate>
	</item></channel></rss>`

	items, err := ParseFeed(strings.NewReader(feed), "src")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Published.IsZero())
}

func TestParseFeedTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Mon, 24 Aug 2026 14:30:00 +0000", "2026-08-24T14:30:00Z"},
		{"Mon, 24 Aug 2026 14:30:00 GMT", "2026-08-24T14:30:00Z"},
		{"Tue, 4 Aug 2026 09:00:00 +0000", "2026-08-04T09:00:00Z"},
		{"2026-08-24T14:30:00Z", "2026-08-24T14:30:00Z"},
		{"2026-08-24T10:30:00-04:00", "2026-08-24T14:30:00Z"},
		{"2026-08-24 14:30:00", "2026-08-24T14:30:00Z"},
	}
	for _, tt := range tests {
		got := parseFeedTime(tt.in)
		require.False(t, got.IsZero(), "failed to parse %q", tt.in)
		assert.Equal(t, tt.want, got.Format(time.RFC3339), "input %q", tt.in)
	}

	assert.True(t, parseFeedTime("").IsZero())
	assert.True(t, parseFeedTime("yesterday").IsZero())
}

func TestAtomHref(t *testing.T) {
	links := []atomLink{
		{Href: "https://a.example.com/self", Rel: "self"},
		{Href: "https://a.example.com/page", Rel: "alternate"},
	}
	assert.Equal(t, "https://a.example.com/page", atomHref(links))

	assert.Equal(t, "https://a.example.com/self", atomHref(links[:1]))
	assert.Equal(t, "", atomHref(nil))
}
