package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// stealthJS runs before any page script and hides the usual automation
// markers.
const stealthJS = `
(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', {
		get: () => [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' },
		],
	});
	Object.defineProperty(navigator, 'languages', { get: () => %s });
	window.chrome = window.chrome || { runtime: {} };
	const query = window.navigator.permissions && window.navigator.permissions.query;
	if (query) {
		window.navigator.permissions.query = (p) =>
			p && p.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: query(p);
	}
})();`

// linksJS collects absolute hrefs, skipping non-navigational schemes.
const linksJS = `
(() => {
	const links = Array.from(document.querySelectorAll('a[href]'));
	return links.map(a => a.href).filter(href =>
		href &&
		!href.startsWith('javascript:') &&
		!href.startsWith('mailto:') &&
		!href.startsWith('tel:') &&
		!href.startsWith('#')
	);
})()`

// StealthScript returns the automation-masking script for the given
// Accept-Language value.
func StealthScript(acceptLanguage string) string {
	langs := languageList(acceptLanguage)
	b, _ := json.Marshal(langs)
	return fmt.Sprintf(stealthJS, b)
}

func languageList(acceptLanguage string) []string {
	var out []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		out = []string{"en-US", "en"}
	}
	return out
}

// PageScriptOptions tunes the post-load script.
type PageScriptOptions struct {
	Keywords    []string
	Polls       int
	Interval    time.Duration
	ScrollStep  int
	ScrollPause time.Duration
	MaxScrollMs int
}

// PageScript returns an async expression that polls the document text for
// any of the keywords, then scrolls to the bottom so lazy content loads.
// It resolves to true when a keyword was seen.
func PageScript(opts PageScriptOptions) string {
	keywords, _ := json.Marshal(lowerAll(opts.Keywords))
	step := opts.ScrollStep
	if step <= 0 {
		step = 400
	}
	maxScroll := opts.MaxScrollMs
	if maxScroll <= 0 {
		maxScroll = 10000
	}

	return fmt.Sprintf(`
(async () => {
	const keywords = %s;
	const sleep = (ms) => new Promise(r => setTimeout(r, ms));
	let found = keywords.length === 0;
	for (let i = 0; i < %d && !found; i++) {
		const text = (document.body && document.body.innerText || '').toLowerCase();
		found = keywords.some(k => text.includes(k));
		if (!found) await sleep(%d);
	}
	const started = Date.now();
	let last = -1;
	while (Date.now() - started < %d) {
		window.scrollBy(0, %d);
		await sleep(%d);
		const pos = window.scrollY + window.innerHeight;
		if (pos >= document.body.scrollHeight || pos === last) break;
		last = pos;
	}
	window.scrollTo(0, document.body.scrollHeight);
	return found;
})()`, keywords, opts.Polls, opts.Interval.Milliseconds(), maxScroll, step, opts.ScrollPause.Milliseconds())
}

// WaitKeywords merges the configured markers with the longer words of the
// query so the wait loop also fires for content categories other than
// prices.
func WaitKeywords(base []string, query string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
	}
	for _, k := range base {
		add(k)
	}
	for _, w := range strings.FieldsFunc(query, isWordSeparator) {
		if utf8.RuneCountInString(w) >= 4 {
			add(w)
		}
	}
	return out
}

func isWordSeparator(r rune) bool {
	return strings.ContainsRune(" \t\n\r.,;:!?\"'()[]{}/", r)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
