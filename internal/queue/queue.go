package queue

import (
	"net/url"
	"strings"
	"sync"
)

// Entry is one pending fetch.
type Entry struct {
	URL   string
	Depth int
}

// Frontier is the work-list and visited set of a single crawl. Entries are
// popped last-in first-out, which yields a depth-first traversal.
type Frontier struct {
	mu      sync.Mutex
	stack   []Entry
	visited map[string]bool
	order   []string
}

// New creates an empty Frontier.
func New() *Frontier {
	return &Frontier{
		stack:   make([]Entry, 0),
		visited: make(map[string]bool),
	}
}

// Push adds entries so that the first one given is the next one popped.
func (f *Frontier) Push(entries ...Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		f.stack = append(f.stack, entries[i])
	}
}

// Pop returns the next entry to process.
func (f *Frontier) Pop() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.stack) == 0 {
		return Entry{}, false
	}

	last := len(f.stack) - 1
	e := f.stack[last]
	f.stack = f.stack[:last]
	return e, true
}

// MarkVisited records rawURL as visited and reports whether it was new.
func (f *Frontier) MarkVisited(rawURL string) bool {
	key := Key(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.visited[key] {
		return false
	}
	f.visited[key] = true
	f.order = append(f.order, rawURL)
	return true
}

// IsVisited checks if a URL has been visited
func (f *Frontier) IsVisited(rawURL string) bool {
	key := Key(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[key]
}

// Len returns the number of pending entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stack)
}

// VisitedCount returns the number of visited URLs
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Visited returns the visited URLs in visit order.
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Key canonicalizes a URL for visited-set membership: scheme and host are
// lowercased, the fragment is dropped and a trailing slash on a non-root
// path is ignored.
func Key(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
