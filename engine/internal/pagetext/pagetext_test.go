package pagetext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertProducesReadableText(t *testing.T) {
	out := Convert("<html><body><h1>Acme</h1><p>We build things.</p></body></html>")
	require.Contains(t, out, "Acme")
	require.Contains(t, out, "We build things.")
}

func TestConvertEmptyInputYieldsEmptyString(t *testing.T) {
	require.Equal(t, "", Convert(""))
	require.Equal(t, "", Convert("   "))
}

func TestConvertCollapsesExcessBlankLines(t *testing.T) {
	out := Convert("<p>a</p>\n\n\n\n<p>b</p>")
	require.NotContains(t, out, "\n\n\n")
}
