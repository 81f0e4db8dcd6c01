package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/siteextract/internal/present"
	"github.com/go-scripts/siteextract/pkg/common"
)

func intPtr(n int) *int { return &n }

func noEnv(string) string { return "" }

func TestBuildConfig(t *testing.T) {
	tests := []struct {
		name  string
		flags CLIFlags
		env   map[string]string
		check func(t *testing.T, depth, links int, disableRender bool)
	}{
		{
			name:  "defaults",
			flags: CLIFlags{URL: "https://example.com", Query: "q"},
			check: func(t *testing.T, depth, links int, disableRender bool) {
				assert.Equal(t, 2, depth)
				assert.Equal(t, 5, links)
				assert.False(t, disableRender)
			},
		},
		{
			name:  "flags override env",
			flags: CLIFlags{Depth: intPtr(0), Links: intPtr(3), NoRender: true},
			env:   map[string]string{"SITEEXTRACT_MAX_DEPTH": "4", "SITEEXTRACT_MAX_LINKS": "9"},
			check: func(t *testing.T, depth, links int, disableRender bool) {
				assert.Equal(t, 0, depth)
				assert.Equal(t, 3, links)
				assert.True(t, disableRender)
			},
		},
		{
			name:  "env without flags",
			flags: CLIFlags{},
			env:   map[string]string{"SITEEXTRACT_MAX_DEPTH": "1", "SITEEXTRACT_DISABLE_RENDER": "true"},
			check: func(t *testing.T, depth, links int, disableRender bool) {
				assert.Equal(t, 1, depth)
				assert.Equal(t, 5, links)
				assert.True(t, disableRender)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildConfig(tt.flags, func(k string) string { return tt.env[k] })
			require.NoError(t, err)
			tt.check(t, cfg.Crawl.MaxDepth, cfg.Crawl.MaxLinks, cfg.Render.DisableRender)
		})
	}
}

func TestBuildConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteextract.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{crawl: {max_depth: 1, max_links: 2}}`), 0644))

	cfg, err := buildConfig(CLIFlags{ConfigFile: path}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Crawl.MaxDepth)
	assert.Equal(t, 2, cfg.Crawl.MaxLinks)

	_, err = buildConfig(CLIFlags{ConfigFile: filepath.Join(t.TempDir(), "missing.json5")}, noEnv)
	assert.Error(t, err)
}

func TestBuildConfigRejectsNegativeLimits(t *testing.T) {
	_, err := buildConfig(CLIFlags{Depth: intPtr(-1)}, noEnv)
	assert.Error(t, err)
}

func TestBuildTarget(t *testing.T) {
	cfg, err := buildConfig(CLIFlags{Depth: intPtr(1)}, noEnv)
	require.NoError(t, err)

	target := buildTarget(CLIFlags{URL: " https://example.com ", Query: " rates "}, cfg)
	assert.Equal(t, common.CrawlTarget{URL: "https://example.com", Query: "rates", MaxDepth: 1, MaxLinks: 5}, target)
}

func sampleResult() *common.CrawlResult {
	extraction := common.ExtractionResult{
		Items:    []common.Record{common.NewRecord("currency", "EUR", "rate", "0.92")},
		Summary:  "One rate.",
		DataType: "exchange_rates",
		Columns:  []string{"currency", "rate"},
	}
	table := present.Format(extraction)
	return &common.CrawlResult{
		Success:       true,
		URL:           "https://example.com",
		Query:         "rates",
		ExtractedData: &extraction,
		TableHTML:     table.HTML,
		TableData:     table.Rows,
		Summary:       extraction.Summary,
		TotalPages:    1,
		Links:         []string{},
	}
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		format   string
		contains []string
	}{
		{"json", []string{`"success": true`, `"data_type": "exchange_rates"`}},
		{"html", []string{`class="siteextract-table"`, "EUR"}},
		{"markdown", []string{"**One rate.**", "| currency | rate |"}},
		{"table", []string{"Crawl Summary", "EUR", "0.92"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printResult(&buf, sampleResult(), tt.format, time.Second, 0))
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestPrintResultJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, sampleResult(), "json", 0, 0))

	var decoded common.CrawlResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.TableData, 1)
	assert.Equal(t, []string{"currency", "rate"}, decoded.TableData[0].Keys())
}

func TestPrintResultFailureHTML(t *testing.T) {
	res := common.FailedResult(common.NewCrawlTarget("https://example.com", "q"), "bad <thing>")
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, res, "html", 0, 0))
	assert.Equal(t, "<p>bad &lt;thing&gt;</p>\n", buf.String())
}
