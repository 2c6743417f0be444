// Package pagetext converts fetched HTML into the plain text carried on
// models.PageText. Grounded on
// engine/internal/processor/processor.go's HTMLToMarkdownConverter
// (html-to-markdown/v2 with the base+commonmark+table plugin set),
// stripped of the teacher's image/metadata extraction and relative-URL
// rewriting since the fabric's content model is plain page text, not an
// enriched asset bundle.
package pagetext

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	htmlCommentRE = regexp.MustCompile(`<!--[\s\S]*?-->`)
	blankRunRE    = regexp.MustCompile(`\n{3,}`)
)

// Convert renders html as cleaned markdown text. An empty or unparsable
// document yields an empty string rather than an error: a page with no
// extractable text is a legitimate (if uninteresting) scrape outcome.
func Convert(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	conv := converter.NewConverter(converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	))
	markdown, err := conv.ConvertString(html)
	if err != nil {
		return ""
	}
	return clean(markdown)
}

func clean(markdown string) string {
	cleaned := htmlCommentRE.ReplaceAllString(markdown, "")
	cleaned = blankRunRE.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
