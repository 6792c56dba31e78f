// Package parser implements the page parser (C3): turning raw catalog HTML
// into typed Entry/Magnet records, plus the tag-set recognition and quality
// filters the scraper consults. Grounded in the teacher's goquery-based
// extractor.go, generalized from meta/header/image scraping to the
// catalog's index/detail page shapes, with the multilingual tag tables from
// original_source/utils/parser.py and api/parsers/tag_parser.py folded into
// one place per the distilled spec's design note.
package parser

import "strings"

// Tag set i ("has Chinese-subtitle magnet", HasChineseSubtitleTag) and tag
// set ii ("released today or yesterday", HasReleasedRecentlyTag) are
// recognized across their observed multilingual/legacy variants.
// Centralizing the variant lists here is the "one place" the distilled
// spec's design notes ask for.
var chineseSubtitleTagVariants = []string{"含中字磁鏈", "含中字磁链", "cnsub dl"}
var releasedRecentlyTagVariants = []string{"今日新種", "今日新种", "昨日新種", "昨日新种"}

func tagMatchesAny(tag string, variants []string) bool {
	lower := strings.ToLower(strings.TrimSpace(tag))
	for _, v := range variants {
		if lower == strings.ToLower(v) {
			return true
		}
	}
	return false
}

// HasChineseSubtitleTag reports whether tags contains any recognized
// variant of "has Chinese-subtitle magnet".
func HasChineseSubtitleTag(tags []string) bool {
	for _, t := range tags {
		if tagMatchesAny(t, chineseSubtitleTagVariants) {
			return true
		}
	}
	return false
}

// HasReleasedRecentlyTag reports whether tags contains any recognized
// variant of "released today or yesterday".
func HasReleasedRecentlyTag(tags []string) bool {
	for _, t := range tags {
		if tagMatchesAny(t, releasedRecentlyTagVariants) {
			return true
		}
	}
	return false
}
