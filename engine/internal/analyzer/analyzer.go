// Package analyzer implements the Site Analyzer (spec.md §4.7): a pure
// function from headers + body to a SiteProfile classification, with no
// network I/O of its own. Grounded on
// engine/internal/crawler/colly_fetcher.go's goquery usage pattern,
// applied here to header/body heuristic scanning instead of link
// discovery.
package analyzer

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/99souls/scrapefabric/engine/models"
)

// bodyScanLimit caps the HTML examined to ~32KB, per spec.md §4.7.
const bodyScanLimit = 32 * 1024

var captchaKeywords = []string{"captcha", "recaptcha", "hcaptcha", "are you human", "verify you are human"}

// Analyze classifies protection and rendering kind from the response
// headers and a (possibly truncated) body. It performs no network I/O.
func Analyze(headers http.Header, body []byte) models.SiteProfile {
	if len(body) > bodyScanLimit {
		body = body[:bodyScanLimit]
	}
	lowerBody := strings.ToLower(string(body))

	profile := models.SiteProfile{
		Reachable:  true,
		Protection: classifyProtection(headers, lowerBody),
		Kind:       classifyKind(lowerBody),
	}
	return profile
}

func classifyProtection(headers http.Header, lowerBody string) models.ProtectionKind {
	server := strings.ToLower(headers.Get("Server"))
	if headers.Get("cf-ray") != "" || strings.Contains(server, "cloudflare") {
		if strings.Contains(lowerBody, "challenge-form") || containsCaptcha(lowerBody) {
			return models.ProtectionCaptcha
		}
		return models.ProtectionCloudflare
	}
	if strings.Contains(lowerBody, "challenge-form") {
		return models.ProtectionWAF
	}
	if containsCaptcha(lowerBody) {
		return models.ProtectionCaptcha
	}
	if headers.Get("Retry-After") != "" {
		return models.ProtectionRateLimit
	}
	return models.ProtectionNone
}

func containsCaptcha(lowerBody string) bool {
	for _, kw := range captchaKeywords {
		if strings.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

// classifyKind detects a JS-heavy empty <body> (SPA signature): goquery
// parses the document; under 200 characters of body text with at least
// one script is SPA, under 800 with at least three scripts is hybrid, and
// anything else is static.
func classifyKind(lowerBody string) models.SiteKind {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(lowerBody))
	if err != nil {
		return models.SiteStatic
	}
	bodyText := strings.TrimSpace(doc.Find("body").Text())
	scriptCount := doc.Find("script").Length()

	if len(bodyText) < 200 && scriptCount > 0 {
		return models.SiteSPA
	}
	if len(bodyText) < 800 && scriptCount >= 3 {
		return models.SiteHybrid
	}
	return models.SiteStatic
}
