package crawl

import (
	"net/url"
	"path"
	"strings"

	"github.com/go-scripts/siteextract/internal/queue"
)

var assetExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true, ".ico": true, ".bmp": true,
	".css": true, ".js": true, ".json": true, ".xml": true, ".rss": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true, ".tar": true, ".dmg": true, ".exe": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true, ".wav": true, ".ogg": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

func hostKey(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func isSameDomain(seed *url.URL, u *url.URL) bool {
	return hostKey(u.Hostname()) == hostKey(seed.Hostname())
}

func shouldExclude(u *url.URL, excludePaths []string) bool {
	for _, exclude := range excludePaths {
		if exclude != "" && strings.Contains(u.Path, exclude) {
			return true
		}
	}
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

func normalizeURL(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

// internalLinks returns the links of pageURL that stay on the seed's site,
// resolved, deduplicated and in document order.
func internalLinks(seed *url.URL, pageURL string, hrefs []string, excludePaths []string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	self := queue.Key(pageURL)

	seen := make(map[string]bool)
	var out []string
	for _, href := range hrefs {
		u, ok := normalizeURL(base, href)
		if !ok || !isSameDomain(seed, u) || shouldExclude(u, excludePaths) {
			continue
		}
		link := u.String()
		key := queue.Key(link)
		if key == self || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, link)
	}
	return out
}
