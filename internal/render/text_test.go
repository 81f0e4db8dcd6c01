package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>  Exchange   Rates </title>
	<style>body { color: red; }</style>
	<script>var tracking = "do not include";</script>
</head>
<body>
	<nav><a href="/">Home</a> <a href="rates?page=2#top">More rates</a></nav>
	<h1>Today's   rates</h1>
	<table>
		<tr><th>Currency</th><th>Rate</th></tr>
		<tr><td>EUR</td><td>0.92</td></tr>
	</table>
	<noscript>Enable JavaScript</noscript>
	<p>Contact <a href="mailto:desk@example.com">us</a> or
	<a href="javascript:void(0)">chat</a>, <a href="#footer">skip</a>,
	<a href="tel:+100">call</a>, <a href="https://other.example.org/x">partner</a>.</p>
	<svg><text>chart label</text></svg>
</body>
</html>`

func TestExtractText(t *testing.T) {
	text := ExtractText(samplePage)

	assert.Contains(t, text, "Today's rates")
	assert.Contains(t, text, "EUR 0.92")
	assert.Contains(t, text, "Currency Rate")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Enable JavaScript")
	assert.NotContains(t, text, "chart label")
	assert.NotContains(t, text, "Exchange Rates", "head content is dropped")

	for _, line := range strings.Split(text, "\n") {
		assert.NotEmpty(t, line)
		assert.Equal(t, strings.TrimSpace(line), line)
		assert.NotContains(t, line, "  ")
	}
}

func TestExtractTextEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractText(""))
	assert.Equal(t, "", ExtractText("<html><body>   </body></html>"))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Exchange Rates", ExtractTitle(samplePage))
	assert.Equal(t, "", ExtractTitle("<p>no title</p>"))
}

func TestExtractLinks(t *testing.T) {
	links := ExtractLinks(samplePage, "https://example.com/markets/")

	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/markets/rates?page=2#top",
		"https://other.example.org/x",
	}, links)
}
