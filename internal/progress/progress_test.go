package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCounts(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf)

	tr.PageStarted("https://example.com/", 0)
	tr.PageFinished("https://example.com/", 0, nil)
	tr.PageStarted("https://example.com/missing", 1)
	tr.PageFinished("https://example.com/missing", 1, errors.New("not_found: status 404"))
	tr.ExtractionStarted()
	tr.Stop()
	tr.Stop()

	fetched, failed := tr.Counts()
	assert.Equal(t, 1, fetched)
	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "Error processing https://example.com/missing (depth 1): not_found: status 404")
}

func TestTrackerIgnoresUpdatesAfterStop(t *testing.T) {
	tr := New(&bytes.Buffer{})
	tr.Stop()
	tr.PageStarted("https://example.com/", 0)
	assert.False(t, tr.spinner.Active())
}

func TestTrackerTruncatesMultibyteErrors(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf)
	defer tr.Stop()

	tr.PageFinished("https://example.com/", 1, errors.New(strings.Repeat("é", 60)))

	tr.spinner.Lock()
	suffix := tr.spinner.Suffix
	tr.spinner.Unlock()
	assert.True(t, utf8.ValidString(suffix))
	assert.True(t, strings.HasSuffix(suffix, "ERROR: "+strings.Repeat("é", 40)+"..."))
}

func TestFormatSpinnerMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "https://example.com/a", "https://example.com/a"},
		{"long path", "https://example.com/a/very/long/path/to/some/page", "example.com...ery/long/path/to/some/page"},
		{"unparseable", strings.Repeat(":", 50), "..." + strings.Repeat(":", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatSpinnerMessage(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 43)
		})
	}
}
