package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

// Warning is a non-fatal parse note attached to a parsed record (per the
// distilled spec's design note: parsing returns (record, warnings[])).
type Warning struct {
	Href string
	Msg  string
}

// ParseIndexPage turns one catalog index page's HTML into the Entry records
// it lists. It returns every entry found; filtering is left to the caller
// (ShouldAdmitPhase1/ShouldAdmitPhase2 below), per the distilled spec.
func ParseIndexPage(html string, page int) ([]domain.Entry, []Warning, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, pipeerr.New("parser.ParseIndexPage", pipeerr.Parse, err)
	}

	var entries []domain.Entry
	var warnings []Warning

	doc.Find(".movie-list .item").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Find("a").First().Attr("href")
		videoCode := strings.TrimSpace(s.Find(".video-title strong").First().Text())
		title := strings.TrimSpace(s.Find(".video-title").First().Text())
		title = strings.TrimPrefix(title, videoCode)
		title = strings.TrimSpace(title)

		entry := domain.Entry{
			Href:      href,
			VideoCode: videoCode,
			Title:     title,
			Page:      page,
		}

		if actor := strings.TrimSpace(s.Find(".actor-name").First().Text()); actor != "" {
			entry.Actor = actor
		}

		if ratingText := strings.TrimSpace(s.Find(".score .value").First().Text()); ratingText != "" {
			if r, ok := parseRating(ratingText); ok {
				entry.Rating = r
				entry.HasRating = true
			} else {
				warnings = append(warnings, Warning{Href: href, Msg: "unparseable rating: " + ratingText})
			}
		}

		if commentText := strings.TrimSpace(s.Find(".score .comments").First().Text()); commentText != "" {
			if c, ok := parseComments(commentText); ok {
				entry.Comments = c
				entry.HasComments = true
			} else {
				warnings = append(warnings, Warning{Href: href, Msg: "unparseable comment count: " + commentText})
			}
		}

		s.Find(".tags .tag").Each(func(_ int, t *goquery.Selection) {
			if tag := strings.TrimSpace(t.Text()); tag != "" {
				entry.Tags = append(entry.Tags, tag)
			}
		})

		if href == "" || videoCode == "" {
			warnings = append(warnings, Warning{Href: href, Msg: "missing href or video_code, skipped"})
			return
		}
		entries = append(entries, entry)
	})

	return entries, warnings, nil
}

func parseRating(text string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseComments(text string) (int, bool) {
	text = strings.TrimSuffix(strings.TrimSpace(text), "")
	text = strings.Trim(text, "()人comments ")
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ShouldAdmitPhase1 applies Phase 1's gate: tag (i) AND — unless the
// release-date filter is suppressed — tag (ii).
func ShouldAdmitPhase1(e domain.Entry, ignoreReleaseDate bool) bool {
	if !HasChineseSubtitleTag(e.Tags) {
		return false
	}
	if ignoreReleaseDate {
		return true
	}
	return HasReleasedRecentlyTag(e.Tags)
}

// ShouldAdmitPhase2 applies Phase 2's gate: tag (ii) AND rating >= minRate
// AND comment_count >= minComments. A missing rating or comment count makes
// the entry ineligible (it cannot satisfy the numeric thresholds).
func ShouldAdmitPhase2(e domain.Entry, minRate float64, minComments int, ignoreReleaseDate bool) bool {
	if !ignoreReleaseDate && !HasReleasedRecentlyTag(e.Tags) {
		return false
	}
	if !e.HasRating || !e.HasComments {
		return false
	}
	return e.Rating >= minRate && e.Comments >= minComments
}
