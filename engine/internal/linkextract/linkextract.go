// Package linkextract implements the Link Extractor & Prioritiser
// (spec.md §4.9): parses HTML to internal links, filters and deduplicates
// them, then ranks by a weighted keyword set. Grounded on
// engine/internal/crawler/colly_fetcher.go's Discover method (goquery
// a[href] walk + relative-URL resolution), generalized with the keyword
// scoring and same-registrable-domain filtering the spec requires.
package linkextract

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/99souls/scrapefabric/engine/internal/hostkey"
)

// Link is one candidate internal link with its prioritisation score.
type Link struct {
	URL   string
	Score int
}

// blocklistedHosts are social/aggregator hosts dropped regardless of
// registrable-domain match (they'd never match same-domain anyway, but
// kept explicit per spec.md §4.9's "static blocklist" wording).
var blocklistedHosts = map[string]bool{
	"facebook.com": true, "instagram.com": true, "twitter.com": true, "x.com": true,
	"linkedin.com": true, "youtube.com": true, "tiktok.com": true, "wa.me": true,
}

// nonHTMLExtensions are file extensions dropped outright.
var nonHTMLExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".css": true, ".js": true, ".zip": true, ".xml": true,
	".ico": true, ".woff": true, ".woff2": true, ".mp4": true,
}

// keywordWeights is the weighted keyword set of spec.md §4.9. Higher
// weight means higher priority; ties are broken by shorter path.
var keywordWeights = map[string]int{
	"sobre": 10, "about": 10, "empresa": 9, "quem-somos": 9,
	"contato": 8, "contact": 8,
	"produtos": 7, "products": 7, "servicos": 7, "services": 7,
	"portfolio": 5, "clientes": 5,
}

const maxDepth = 3

// Extract parses body relative to base and returns every internal,
// same-registrable-domain link surviving the filters, deduplicated.
// Re-parsing the same body twice yields an identical, order-stable list
// (R1): the goquery walk order is document order, and dedupe preserves
// first-seen order.
func Extract(base *url.URL, body []byte) []Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	baseHost := hostkey.FromURL(base)

	seen := make(map[string]bool)
	var out []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, ok := resolve(base, href)
		if !ok {
			return
		}
		if !keepLink(resolved, baseHost) {
			return
		}
		norm := normalize(resolved)
		if seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, Link{URL: norm, Score: score(resolved)})
	})
	return out
}

func resolve(base *url.URL, href string) (*url.URL, bool) {
	if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
		return nil, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	return u, true
}

func keepLink(u *url.URL, baseHost string) bool {
	if hostkey.FromURL(u) != baseHost {
		return false
	}
	if blocklistedHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	if nonHTMLExtensions[strings.ToLower(path.Ext(u.Path))] {
		return false
	}
	if u.Path == "" || u.Path == "/" {
		// root is always allowed through, but anchors/query-only diffs
		// against an empty path are not meaningfully "deeper" links.
	}
	if depthOf(u.Path) > maxDepth {
		return false
	}
	return true
}

func depthOf(p string) int {
	p = strings.Trim(p, "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// normalize drops the fragment (anchor) so #foo variants of the same page
// collapse to one entry, and strips a trailing slash for dedupe stability.
func normalize(u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	s := cp.String()
	if strings.HasSuffix(s, "/") && len(s) > len(cp.Scheme)+len(cp.Host)+4 {
		s = strings.TrimSuffix(s, "/")
	}
	return s
}

func score(u *url.URL) int {
	lowerPath := strings.ToLower(u.Path)
	best := 0
	for kw, weight := range keywordWeights {
		if strings.Contains(lowerPath, kw) && weight > best {
			best = weight
		}
	}
	return best
}

// Prioritise returns the top `max` links by score, ties broken by shorter
// path then lexical order for full determinism (R2: stable under
// input shuffling).
func Prioritise(links []Link, max int) []Link {
	if max <= 0 {
		return nil
	}
	sorted := make([]Link, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if len(sorted[i].URL) != len(sorted[j].URL) {
			return len(sorted[i].URL) < len(sorted[j].URL)
		}
		return sorted[i].URL < sorted[j].URL
	})
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}
