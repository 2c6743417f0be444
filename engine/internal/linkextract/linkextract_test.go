package linkextract

import (
	"math/rand"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleHTML = `
<html><body>
<a href="/sobre-nos">Sobre</a>
<a href="/contato">Contato</a>
<a href="/produtos/linha-a">Produtos</a>
<a href="/blog/2024/01/01/post-title/extra">Deep post</a>
<a href="https://external.example/about">External</a>
<a href="https://www.facebook.com/acme">Facebook</a>
<a href="/sobre-nos#team">Sobre anchor</a>
<a href="/catalog.pdf">Catalog PDF</a>
<a href="#top">Top anchor only</a>
<a href="mailto:hi@acme.com">Email</a>
<a href="/">Home</a>
</body></html>
`

func mustBase(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://www.acme.com.br/")
	require.NoError(t, err)
	return u
}

// TestRoundTrip1_ReExtractionIsOrderStable (R1): parsing the same body
// twice yields an identical, order-stable link list.
func TestRoundTrip1_ReExtractionIsOrderStable(t *testing.T) {
	base := mustBase(t)
	first := Extract(base, []byte(sampleHTML))
	second := Extract(base, []byte(sampleHTML))
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestExtractFiltersExternalAnchorsAndNonHTML(t *testing.T) {
	base := mustBase(t)
	links := Extract(base, []byte(sampleHTML))

	var urls []string
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	require.Contains(t, urls, "https://www.acme.com.br/sobre-nos")
	require.Contains(t, urls, "https://www.acme.com.br/contato")
	require.NotContains(t, urls, "https://external.example/about")
	require.NotContains(t, urls, "https://www.facebook.com/acme")
	require.NotContains(t, urls, "https://www.acme.com.br/catalog.pdf")

	for _, u := range urls {
		require.NotContains(t, u, "#")
	}
}

func TestExtractDropsPathsDeeperThanMaxDepth(t *testing.T) {
	base := mustBase(t)
	links := Extract(base, []byte(sampleHTML))
	for _, l := range links {
		require.NotContains(t, l.URL, "/blog/2024/01/01/post-title/extra")
	}
}

func TestExtractDedupesAnchorVariants(t *testing.T) {
	base := mustBase(t)
	links := Extract(base, []byte(sampleHTML))
	count := 0
	for _, l := range links {
		if l.URL == "https://www.acme.com.br/sobre-nos" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

// TestRoundTrip2_PrioritiseStableUnderShuffle (R2): the prioritiser
// selects the same top-N prefix regardless of input order.
func TestRoundTrip2_PrioritiseStableUnderShuffle(t *testing.T) {
	links := []Link{
		{URL: "https://acme.com/sobre-nos", Score: 10},
		{URL: "https://acme.com/contato", Score: 8},
		{URL: "https://acme.com/produtos", Score: 7},
		{URL: "https://acme.com/random-page", Score: 0},
		{URL: "https://acme.com/clientes", Score: 5},
	}
	want := Prioritise(links, 3)

	shuffled := make([]Link, len(links))
	copy(shuffled, links)
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	got := Prioritise(shuffled, 3)
	require.Equal(t, want, got)
}

func TestPrioritiseCapsAtMax(t *testing.T) {
	var links []Link
	for i := 0; i < 10; i++ {
		links = append(links, Link{URL: "https://acme.com/p" + string(rune('a'+i)), Score: i})
	}
	got := Prioritise(links, 5)
	require.Len(t, got, 5)
	require.Equal(t, 9, got[0].Score)
}

func TestPrioritiseTiesBrokenByShorterPath(t *testing.T) {
	links := []Link{
		{URL: "https://acme.com/contato-longo-extra", Score: 8},
		{URL: "https://acme.com/contato", Score: 8},
	}
	got := Prioritise(links, 2)
	require.Equal(t, "https://acme.com/contato", got[0].URL)
}
