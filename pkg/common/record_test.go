package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPreservesKeyOrder(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"alpha":"x","mid":null}`), &r))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Keys())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":1,"alpha":"x","mid":null}`, string(out))
	assert.Equal(t, `{"zeta":1,"alpha":"x","mid":null}`, string(out))
}

func TestRecordDuplicateKeyKeepsFirstPosition(t *testing.T) {
	r := NewRecord("a", 1, "b", 2)
	r.Set("a", 3)

	assert.Equal(t, []string{"a", "b"}, r.Keys())
	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRecordRejectsNonObject(t *testing.T) {
	var r Record
	assert.Error(t, json.Unmarshal([]byte(`["a","b"]`), &r))
	assert.Error(t, json.Unmarshal([]byte(`"scalar"`), &r))
}

func TestRecordString(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"rate":1.2500,"ok":true,"name":"USD","tags":["a"],"none":null}`), &r))

	tests := []struct {
		key  string
		want string
	}{
		{"rate", "1.2500"},
		{"ok", "true"},
		{"name", "USD"},
		{"tags", `["a"]`},
		{"none", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, r.String(tt.key))
		})
	}
}

func TestEmptyRecordMarshalsAsObject(t *testing.T) {
	out, err := json.Marshal(Record{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestCrawlTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  CrawlTarget
		wantErr bool
	}{
		{"defaults", NewCrawlTarget("https://example.com", "prices"), false},
		{"empty url", NewCrawlTarget("", "prices"), true},
		{"bad scheme", NewCrawlTarget("ftp://example.com", "prices"), true},
		{"no host", NewCrawlTarget("https://", "prices"), true},
		{"empty query", NewCrawlTarget("https://example.com", "  "), true},
		{"negative depth", CrawlTarget{URL: "https://example.com", Query: "q", MaxDepth: -1}, true},
		{"negative links", CrawlTarget{URL: "https://example.com", Query: "q", MaxLinks: -1}, true},
		{"zero limits", CrawlTarget{URL: "https://example.com", Query: "q"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	target := NewCrawlTarget(" https://example.com ", "q")
	assert.Equal(t, DefaultMaxDepth, target.MaxDepth)
	assert.Equal(t, DefaultMaxLinks, target.MaxLinks)
	assert.Equal(t, "https://example.com", target.URL)
}

func TestFailedResultIsWellFormed(t *testing.T) {
	res := FailedResult(NewCrawlTarget("https://example.com", "q"), "boom")

	out, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "boom", decoded["error"])
	assert.Nil(t, decoded["table_html"])
	assert.Equal(t, []any{}, decoded["table_data"])
	assert.NotContains(t, decoded, "extracted_data")
}
