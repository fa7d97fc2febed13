package compositor

import (
	"html"
	"regexp"
	"strings"
)

// Title layers may carry a tiny markup vocabulary: sizing spans and line
// breaks. Everything else, attributes included, is escaped.
var (
	titleTagRE       = regexp.MustCompile(`<[^>]+>`)
	titleSpanOpenRE  = regexp.MustCompile(`(?i)^<\s*span\s+class\s*=\s*(['"])\s*(title-big|title-small)\s*['"]\s*>\s*$`)
	titleSpanCloseRE = regexp.MustCompile(`(?i)^<\s*/\s*span\s*>\s*$`)
	titleBrRE        = regexp.MustCompile(`(?i)^<\s*br\s*/?\s*>\s*$`)
)

// SanitizeTitleHTML escapes everything in text except the whitelisted
// <span class="title-big|title-small">, </span> and <br/> tags.
func SanitizeTitleHTML(text string) string {
	var out strings.Builder
	lastEnd := 0

	for _, span := range titleTagRE.FindAllStringIndex(text, -1) {
		start, end := span[0], span[1]
		if start > lastEnd {
			out.WriteString(html.EscapeString(text[lastEnd:start]))
		}
		tag := text[start:end]
		if titleSpanOpenRE.MatchString(tag) || titleSpanCloseRE.MatchString(tag) || titleBrRE.MatchString(tag) {
			out.WriteString(tag)
		} else {
			out.WriteString(html.EscapeString(tag))
		}
		lastEnd = end
	}
	if lastEnd < len(text) {
		out.WriteString(html.EscapeString(text[lastEnd:]))
	}

	return out.String()
}
