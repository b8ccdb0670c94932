// Package excerpt cleans the free text captured around venue mentions.
//
// Sources hand back HTML fragments, markdown comment bodies or plain text.
// Clean reduces all of them to readable plain text, and Truncate bounds the
// text handed to the classifier.
package excerpt

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Format identifies the markup of a raw excerpt.
type Format string

// Supported formats.
const (
	FormatPlain    Format = "plain"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// DefaultLimit is the default maximum excerpt length in runes.
const DefaultLimit = 1000

// ParseFormat maps a config value onto a Format, defaulting to plain.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHTML:
		return FormatHTML
	case FormatMarkdown:
		return FormatMarkdown
	default:
		return FormatPlain
	}
}

// Pre-compiled expressions for markup stripping.
var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	svgTag        = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	breakTags     = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)

	codeBlock    = regexp.MustCompile("(?s)```.*?```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasis     = regexp.MustCompile(`(\*\*|__|\*|~~)`)
	blockquote   = regexp.MustCompile(`(?m)^>\s*`)
	rules        = regexp.MustCompile(`(?m)^[-*_]{3,}[ \t]*$`)
	listMarkers  = regexp.MustCompile(`(?m)^[ \t]*([-*+]|\d+\.)\s+`)
	spaces       = regexp.MustCompile(`[ \t\f\v]+`)
	blankRunning = regexp.MustCompile(`\n{2,}`)
)

// Clean converts a raw excerpt to plain text with collapsed whitespace.
// Paragraph breaks survive as single newlines.
func Clean(text string, format Format) string {
	switch format {
	case FormatHTML:
		text = stripHTML(text)
	case FormatMarkdown:
		text = stripMarkdown(text)
	}
	return collapse(text)
}

func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = blockElements.ReplaceAllString(content, "\n")
	content = breakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	return html.UnescapeString(content)
}

func stripMarkdown(content string) string {
	content = codeBlock.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = blockquote.ReplaceAllString(content, "")
	content = rules.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	return emphasis.ReplaceAllString(content, "")
}

func collapse(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = spaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return blankRunning.ReplaceAllString(strings.Join(kept, "\n"), "\n")
}

// Truncate shortens text to at most limit runes, cutting at the last word
// boundary and appending an ellipsis. A non-positive limit uses DefaultLimit.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:limit-1])
	if i := strings.LastIndexAny(cut, " \n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// Window returns the sentence-ish span of text around the first mention of
// name, at most limit runes long. It falls back to the leading text when the
// name does not occur.
func Window(text, name string, limit int) string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(name))
	if idx < 0 || utf8.RuneCountInString(text) <= limit {
		return Truncate(text, limit)
	}

	start := strings.LastIndexAny(text[:idx], ".!?\n")
	if start < 0 {
		start = 0
	} else {
		start++
	}
	return Truncate(strings.TrimSpace(text[start:]), limit)
}
