package analyzer

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/99souls/scrapefabric/engine/models"
)

func TestClassifiesCloudflareFromHeader(t *testing.T) {
	h := http.Header{}
	h.Set("cf-ray", "abc123")
	profile := Analyze(h, []byte("<html><body>hello</body></html>"))
	require.Equal(t, models.ProtectionCloudflare, profile.Protection)
}

func TestClassifiesCaptchaFromBody(t *testing.T) {
	h := http.Header{}
	profile := Analyze(h, []byte("<html><body>Please complete the recaptcha</body></html>"))
	require.Equal(t, models.ProtectionCaptcha, profile.Protection)
}

func TestClassifiesNoneByDefault(t *testing.T) {
	h := http.Header{}
	profile := Analyze(h, []byte("<html><body>Welcome to our company site with lots of content.</body></html>"))
	require.Equal(t, models.ProtectionNone, profile.Protection)
}

func TestClassifiesSPAFromEmptyBody(t *testing.T) {
	h := http.Header{}
	body := `<html><body><div id="root"></div><script src="app.js"></script></body></html>`
	profile := Analyze(h, []byte(body))
	require.Equal(t, models.SiteSPA, profile.Kind)
}

func TestClassifiesStaticFromRichBody(t *testing.T) {
	h := http.Header{}
	body := "<html><body>" + strings.Repeat("Lorem ipsum dolor sit amet. ", 40) + "</body></html>"
	profile := Analyze(h, []byte(body))
	require.Equal(t, models.SiteStatic, profile.Kind)
}
