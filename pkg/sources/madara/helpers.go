package madara

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func str(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}

func items(val any) []map[string]any {
	records, _ := val.([]map[string]any)
	return records
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// workSlug pulls the work identifier out of a Madara work or chapter URL,
// which always looks like /manga/<slug>/ or /manga/<slug>/<chapter>/.
func workSlug(raw string) string {
	segments := pathSegments(raw)
	for i, segment := range segments {
		if segment == "manga" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

// chapterSlug is the last path segment of a chapter URL.
func chapterSlug(raw string) string {
	segments := pathSegments(raw)
	if len(segments) < 3 {
		return ""
	}
	return segments[len(segments)-1]
}

func pathSegments(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	segments := []string{}
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

var chapterNumberRe = regexp.MustCompile(`(?i)chapter[^0-9]*(\d+)(?:[.-](\d+))?`)
var numberRe = regexp.MustCompile(`(\d+)(?:[.-](\d+))?`)

// chapterRank derives the ordering value from the chapter slug or title.
// Sub-chapters appear as "chapter-12-5" or "Chapter 12.5" and map to 12.5.
func chapterRank(nativeID, title string) float64 {
	for _, candidate := range []string{nativeID, title} {
		match := chapterNumberRe.FindStringSubmatch(candidate)
		if match == nil {
			match = numberRe.FindStringSubmatch(candidate)
		}
		if match == nil {
			continue
		}
		text := match[1]
		if match[2] != "" {
			text += "." + match[2]
		}
		rank, err := strconv.ParseFloat(text, 64)
		if err == nil {
			return rank
		}
	}
	return 0
}

var releaseDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006",
	"2006-01-02",
}

// parseReleaseDate parses the absolute date formats Madara sites render.
// Relative forms like "2 hours ago" are dropped; the reconciliation layer
// treats a missing date as less information, not wrong information.
func parseReleaseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(strings.ToLower(text), "ago") {
		return nil
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
