package enrich

// titleStopwords are words too common in market titles to discriminate.
// Shorter words never survive the length cut.
var titleStopwords = map[string]bool{
	"above": true, "and": true, "are": true, "before": true,
	"below": true, "does": true, "for": true, "from": true,
	"over": true, "than": true, "the": true, "this": true,
	"under": true, "will": true, "with": true,
}

// Terms extracts the significant lowercase words from a market title,
// deduplicated in order of first appearance.
func Terms(title string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range Tokenize(title) {
		if len(w) < 3 || titleStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
