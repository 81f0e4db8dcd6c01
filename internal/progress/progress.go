package progress

import (
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// Tracker shows a spinner for the page being fetched and keeps simple
// counters. It satisfies crawl.Observer.
type Tracker struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	out     io.Writer
	fetched int
	failed  int
	errors  []string
	started time.Time
	stopped bool
}

// New creates a Tracker writing to out.
func New(out io.Writer) *Tracker {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(out))
	return &Tracker{
		spinner: s,
		out:     out,
		started: time.Now(),
	}
}

// PageStarted points the spinner at rawURL.
func (t *Tracker) PageStarted(rawURL string, depth int) {
	t.setSuffix(fmt.Sprintf(" [depth %d] %s", depth, formatSpinnerMessage(rawURL)))
}

// PageFinished updates counters and prints a condensed error line for
// failed pages.
func (t *Tracker) PageFinished(rawURL string, depth int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.fetched++
		return
	}
	t.failed++

	msg := fmt.Sprintf("Error processing %s (depth %d): %v", formatSpinnerMessage(rawURL), depth, err)
	t.errors = append(t.errors, msg)

	shortMsg := fmt.Sprintf("ERROR: %v", err)
	if r := []rune(shortMsg); len(r) > 50 {
		shortMsg = string(r[:47]) + "..."
	}
	t.spinner.Lock()
	t.spinner.Suffix = fmt.Sprintf(" [depth %d] %s\n    → %s", depth, formatSpinnerMessage(rawURL), shortMsg)
	t.spinner.Unlock()
}

// ExtractionStarted switches the spinner to the extraction phase.
func (t *Tracker) ExtractionStarted() {
	t.setSuffix(" extracting data...")
}

func (t *Tracker) setSuffix(suffix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.spinner.Lock()
	t.spinner.Suffix = suffix
	t.spinner.Unlock()
	if !t.spinner.Active() {
		t.spinner.Start()
	}
}

// Stop halts the spinner and prints collected page errors.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.spinner.Stop()
	for _, e := range t.errors {
		fmt.Fprintln(t.out, e)
	}
}

// Counts returns the number of fetched and failed pages so far.
func (t *Tracker) Counts() (fetched, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetched, t.failed
}

func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.started)
}

// formatSpinnerMessage shortens long URLs, keeping the host and the tail
// of the path.
func formatSpinnerMessage(urlStr string) string {
	maxLen := 40
	if len(urlStr) <= maxLen {
		return urlStr
	}
	u, err := url.Parse(urlStr)
	if err == nil && u.Host != "" {
		domain := u.Host
		path := u.Path
		keep := maxLen - len(domain) - 3
		if keep < 0 {
			keep = 0
		}
		if len(path) > keep {
			path = "..." + path[len(path)-keep:]
		}
		return domain + path
	}
	return "..." + urlStr[len(urlStr)-maxLen:]
}
