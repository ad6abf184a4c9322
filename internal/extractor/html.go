package extractor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	scriptStylePattern = regexp.MustCompile(`(?is)<script.*?>.*?</script>|<style.*?>.*?</style>`)
	tagPattern         = regexp.MustCompile(`(?s)<[^>]+>`)
	linkPattern        = regexp.MustCompile(`https?://[^\s\v\p{Z}\x{85}'"]+`)
)

// HTMLToText converts markup to plain text by replacing tags with spaces,
// decoding entities and collapsing whitespace.
//
// Text between <script> and <style> tags is kept: only the tags themselves
// are dropped. Use an Extractor built WithScriptStripping to remove those
// blocks entirely.
func HTMLToText(markup string) string {
	return htmlToText(markup, false)
}

func htmlToText(markup string, stripScripts bool) string {
	if stripScripts {
		markup = scriptStylePattern.ReplaceAllString(markup, "")
	}
	text := tagPattern.ReplaceAllString(markup, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// findLinks returns every http(s) URL in markup, duplicates included
func findLinks(markup string) []string {
	return linkPattern.FindAllString(markup, -1)
}

// dedupeLinks removes duplicates keeping the first occurrence of each link
func dedupeLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	unique := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		unique = append(unique, link)
	}
	return unique
}
