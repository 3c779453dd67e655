// Package sortname generates sort keys for catalog titles. Aggregator sites
// decorate titles with articles, brackets, and stray punctuation, so the raw
// title makes a poor ordering key.
package sortname

import (
	"strings"
	"unicode"
)

// articles are moved to the end of the sort title ("The Tower" -> "Tower, The").
var articles = []string{
	"The",
	"A",
	"An",
}

// ForTitle generates a sort title from a display title. Leading articles move
// to the end, decorative brackets and leading punctuation are dropped, and
// interior whitespace is collapsed.
// Examples:
//   - "The Tower of God" -> "Tower of God, The"
//   - "[Official] Solo  Farming" -> "Solo Farming"
//   - "A Returner's Magic" -> "Returner's Magic, A"
func ForTitle(title string) string {
	title = normalize(title)
	if title == "" {
		return ""
	}

	for _, article := range articles {
		prefix := article + " "
		if len(title) > len(prefix) && strings.EqualFold(title[:len(prefix)], prefix) {
			rest := strings.TrimSpace(title[len(prefix):])
			if rest != "" {
				return rest + ", " + title[:len(article)]
			}
		}
	}

	return title
}

// normalize strips leading bracketed tags like "[Official]" or "(Colored)",
// trims leading non-alphanumeric characters, and collapses runs of
// whitespace.
func normalize(title string) string {
	title = strings.TrimSpace(title)

	for {
		trimmed := stripLeadingBracket(title)
		if trimmed == title {
			break
		}
		title = trimmed
	}

	title = strings.TrimLeftFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	return strings.Join(strings.Fields(title), " ")
}

func stripLeadingBracket(title string) string {
	pairs := map[byte]byte{'[': ']', '(': ')', '{': '}'}
	if title == "" {
		return title
	}
	closing, ok := pairs[title[0]]
	if !ok {
		return title
	}
	end := strings.IndexByte(title, closing)
	if end < 0 {
		return title
	}
	return strings.TrimSpace(title[end+1:])
}
