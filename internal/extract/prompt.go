package extract

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/go-scripts/siteextract/internal/llm"
)

// DefaultCorpusChars is the corpus prefix sent to the model.
const DefaultCorpusChars = 15000

const systemPrompt = "You extract structured data from web page text. " +
	"Reply with a single JSON object and nothing else."

const tabularExample = `Query: "current exchange rates against the US dollar"
Reply:
{
  "items": [
    {"currency": "EUR", "buy": "0.9210", "sell": "0.9260"},
    {"currency": "GBP", "buy": "0.7810", "sell": "0.7855"}
  ],
  "summary": "Found buy and sell rates for 2 currencies against USD.",
  "data_type": "exchange_rates",
  "columns": ["currency", "buy", "sell"]
}`

const listingExample = `Query: "two bedroom apartments for rent with price and area"
Reply:
{
  "items": [
    {"title": "Sunny 2BR near the park", "price": "1,450 EUR/month", "area": "68 m2", "location": "Centro"},
    {"title": "Renovated flat, balcony", "price": "1,620 EUR/month", "area": "74 m2"}
  ],
  "summary": "Found 2 two-bedroom rental listings with prices from 1,450 to 1,620 EUR per month.",
  "data_type": "listings",
  "columns": ["title", "price", "area", "location"]
}`

var promptTemplate = template.Must(template.New("prompt").Parse(`Extract the information requested by the query below from the website content.

Query: {{.Query}}

Reply with one JSON object of exactly this shape:
{
  "items": [ { "<field>": <value>, ... } ],
  "summary": "<one or two sentences describing what was found>",
  "data_type": "<short snake_case label for the kind of data>",
  "columns": ["<field>", ...]
}

Rules:
- "items" is always a list. Use [] when nothing matches and explain why in "summary".
- Every item is a flat object of scalar values. Use the same field names across items.
- "columns" lists the field names in display order.
- Copy values as written on the page. Do not invent data.

Example for tabular rate data:
{{.TabularExample}}

Example for itemized listing data:
{{.ListingExample}}

Website content{{if .Truncated}} (truncated){{end}}:
{{.Corpus}}
`))

type promptData struct {
	Query          string
	Corpus         string
	Truncated      bool
	TabularExample string
	ListingExample string
}

// BuildPrompt renders the user prompt for query and the first maxChars
// runes of corpus. It has no side effects.
func BuildPrompt(query, corpus string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultCorpusChars
	}
	prefix, truncated := truncateRunes(corpus, maxChars)

	var b strings.Builder
	// Execute only fails on write errors.
	_ = promptTemplate.Execute(&b, promptData{
		Query:          query,
		Corpus:         prefix,
		Truncated:      truncated,
		TabularExample: tabularExample,
		ListingExample: listingExample,
	})
	return b.String()
}

// BuildMessages wraps BuildPrompt in a system and user message pair.
func BuildMessages(query, corpus string, maxChars int) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(query, corpus, maxChars)},
	}
}

func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
