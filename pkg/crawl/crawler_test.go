package crawl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/siteextract/internal/config"
	"github.com/go-scripts/siteextract/internal/render"
	"github.com/go-scripts/siteextract/pkg/common"
)

const site = "https://site.test"

// fakeSite serves pages from an in-memory link graph keyed by path.
type fakeSite struct {
	mu       sync.Mutex
	links    map[string][]string
	fail     map[string]error
	fallback bool
	fetched  []string
	onFetch  func(path string)
}

func (f *fakeSite) Fetch(ctx context.Context, rawURL, _ string) (*common.Page, error) {
	path := strings.TrimPrefix(rawURL, site)
	if path == "" {
		path = "/"
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, path)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.fail[path]; ok {
		return nil, err
	}
	links, ok := f.links[path]
	if !ok {
		return nil, render.ErrNotFound{Err: errors.New("status 404")}
	}
	return &common.Page{
		URL:          rawURL,
		Title:        "Page " + path,
		Text:         "content of " + path,
		Links:        links,
		FallbackUsed: f.fallback,
	}, nil
}

func (f *fakeSite) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fetched))
	copy(out, f.fetched)
	return out
}

func target(maxDepth, maxLinks int) common.CrawlTarget {
	return common.CrawlTarget{URL: site + "/", Query: "prices", MaxDepth: maxDepth, MaxLinks: maxLinks}
}

func newTestCrawler(f Fetcher) *Crawler {
	return NewCrawler(f, config.DefaultConfig().Crawl)
}

func TestCrawlDepthFirstOrder(t *testing.T) {
	f := &fakeSite{links: map[string][]string{
		"/":   {"/a", "/b"},
		"/a":  {"/a1", "/a2"},
		"/a1": {},
		"/a2": {},
		"/b":  {},
	}}

	out := newTestCrawler(f).Crawl(context.Background(), target(2, 5))
	require.True(t, out.Success)

	assert.Equal(t, []string{"/", "/a", "/a1", "/a2", "/b"}, f.paths())
	assert.Equal(t, 5, out.TotalPages)
	assert.Len(t, out.Visited, 5)
	assert.Contains(t, out.Content, "--- Page: https://site.test/a1 (depth 2) ---")
	assert.Less(t, strings.Index(out.Content, "content of /a2"), strings.Index(out.Content, "content of /b"))
}

func TestCrawlCyclicSiteTerminates(t *testing.T) {
	f := &fakeSite{links: map[string][]string{
		"/":  {"/a"},
		"/a": {"/b"},
		"/b": {"/a", "/"},
	}}

	out := newTestCrawler(f).Crawl(context.Background(), target(10, 5))
	require.True(t, out.Success)
	assert.Equal(t, []string{"/", "/a", "/b"}, f.paths())
	assert.Equal(t, 3, out.TotalPages)
}

func TestCrawlNoRevisits(t *testing.T) {
	f := &fakeSite{links: map[string][]string{
		"/":  {"/a", "/b", "/c"},
		"/a": {"/b", "/c", "/"},
		"/b": {"/a", "/c"},
		"/c": {"/a", "/b"},
	}}

	out := newTestCrawler(f).Crawl(context.Background(), target(3, 5))
	require.True(t, out.Success)

	seen := make(map[string]bool)
	for _, p := range f.paths() {
		assert.False(t, seen[p], "fetched twice: %s", p)
		seen[p] = true
	}
	assert.Len(t, out.Visited, 4)
}

func TestCrawlLinksDedupedByCanonicalKey(t *testing.T) {
	f := &fakeSite{links: map[string][]string{
		"/":  {"/a", "/b"},
		"/a": {},
		"/b": {"/a/", "/B#top"},
	}}

	out := newTestCrawler(f).Crawl(context.Background(), target(2, 5))
	require.True(t, out.Success)
	assert.Equal(t, []string{site + "/a", site + "/b", site + "/B"}, out.Links)
	assert.Equal(t, []string{"/", "/a", "/b", "/B"}, f.paths())
}

func TestCrawlDepthZero(t *testing.T) {
	f := &fakeSite{links: map[string][]string{
		"/": {"/a", "/b"},
	}}

	out := newTestCrawler(f).Crawl(context.Background(), target(0, 5))
	require.True(t, out.Success)
	assert.Equal(t, []string{"/"}, f.paths())
	assert.Equal(t, 1, out.TotalPages)
	assert.Equal(t, []string{site + "/a", site + "/b"}, out.Links)
}

func TestCrawlTerminationBound(t *testing.T) {
	// every page links to ten fresh pages
	links := make(map[string][]string)
	var build func(path string, depth int)
	build = func(path string, depth int) {
		var children []string
		if depth < 4 {
			for i := 0; i < 10; i++ {
				child := path + "/" + string(rune('a'+i))
				if path == "/" {
					child = "/" + string(rune('a'+i))
				}
				children = append(children, child)
				build(child, depth+1)
			}
		}
		links[path] = children
	}
	build("/", 0)

	tests := []struct {
		maxDepth, maxLinks int
		bound              int
	}{
		{0, 3, 1},
		{1, 3, 4},
		{2, 3, 13},
		{2, 2, 7},
		{3, 1, 4},
	}
	for _, tt := range tests {
		f := &fakeSite{links: links}
		out := newTestCrawler(f).Crawl(context.Background(), target(tt.maxDepth, tt.maxLinks))
		require.True(t, out.Success)
		assert.LessOrEqual(t, len(f.paths()), tt.bound)
		assert.Equal(t, tt.bound, out.TotalPages)
	}
}

func TestCrawlMaxLinksCountsVisited(t *testing.T) {
	f := &fakeSite{links: map[string][]string{
		"/":  {"/a", "/b", "/c"},
		"/a": {"/", "/b", "/d"},
		"/b": {},
		"/c": {},
		"/d": {},
	}}

	out := newTestCrawler(f).Crawl(context.Background(), target(2, 2))
	require.True(t, out.Success)
	// /a follows only "/" and "/b"; /d is discovered but never fetched
	assert.Equal(t, []string{"/", "/a", "/b"}, f.paths())
	assert.Contains(t, out.Links, site+"/d")
	assert.Contains(t, out.Links, site+"/c")
}

func TestCrawlSeedFailure(t *testing.T) {
	f := &fakeSite{
		links: map[string][]string{},
		fail:  map[string]error{"/": render.ErrForbidden{Err: errors.New("status 403")}},
	}

	out := newTestCrawler(f).Crawl(context.Background(), target(2, 5))
	assert.False(t, out.Success)
	assert.Empty(t, out.Content)
	require.Error(t, out.Error)
	var forbidden render.ErrForbidden
	assert.True(t, errors.As(out.Error, &forbidden))
}

func TestCrawlChildFailureSkipped(t *testing.T) {
	f := &fakeSite{
		links: map[string][]string{
			"/":  {"/a", "/b"},
			"/b": {},
		},
		fail: map[string]error{"/a": render.ErrTimeout{Err: context.DeadlineExceeded}},
	}

	out := newTestCrawler(f).Crawl(context.Background(), target(2, 5))
	require.True(t, out.Success)
	assert.Equal(t, 2, out.TotalPages)
	assert.Equal(t, []string{"/", "/a", "/b"}, f.paths())
	assert.NotContains(t, out.Content, "content of /a")
	assert.Contains(t, out.Content, "content of /b")
}

func TestCrawlCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeSite{
		links: map[string][]string{
			"/":  {"/a", "/b"},
			"/a": {},
			"/b": {},
		},
		onFetch: func(path string) {
			if path == "/a" {
				cancel()
			}
		},
	}

	out := newTestCrawler(f).Crawl(ctx, target(2, 5))
	assert.False(t, out.Success)
	assert.True(t, errors.Is(out.Error, context.Canceled))
	assert.NotContains(t, f.paths(), "/b")
}

func TestCrawlFallbackFlag(t *testing.T) {
	f := &fakeSite{links: map[string][]string{"/": {}}, fallback: true}
	out := newTestCrawler(f).Crawl(context.Background(), target(1, 5))
	require.True(t, out.Success)
	assert.True(t, out.FallbackUsed)
}

type recordingObserver struct {
	started  []string
	finished []error
}

func (r *recordingObserver) PageStarted(u string, _ int) { r.started = append(r.started, u) }
func (r *recordingObserver) PageFinished(_ string, _ int, err error) {
	r.finished = append(r.finished, err)
}

func TestCrawlObserver(t *testing.T) {
	f := &fakeSite{links: map[string][]string{"/": {"/missing"}}}
	obs := &recordingObserver{}

	out := NewCrawler(f, config.DefaultConfig().Crawl, WithObserver(obs)).Crawl(context.Background(), target(1, 5))
	require.True(t, out.Success)
	assert.Equal(t, []string{site + "/", site + "/missing"}, obs.started)
	require.Len(t, obs.finished, 2)
	assert.NoError(t, obs.finished[0])
	assert.Error(t, obs.finished[1])
}

func TestCrawlTruncatesPageContent(t *testing.T) {
	cfg := config.DefaultConfig().Crawl
	cfg.MaxPageChars = 4
	f := &fakeSite{links: map[string][]string{"/": {}}}

	out := NewCrawler(f, cfg).Crawl(context.Background(), target(0, 5))
	require.True(t, out.Success)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "cont", out.Records[0].Content)
}
