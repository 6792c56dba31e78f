package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

// DetailResult holds the Magnet set found on a detail page plus any Entry
// attributes the index page omitted (actor, rating, comment count).
type DetailResult struct {
	Magnets     []domain.Magnet
	ActorUpdate string
	RatingUpdate     float64
	HasRatingUpdate  bool
	CommentsUpdate   int
	HasCommentsUpdate bool
}

// ParseDetailPage turns one entry's detail-page HTML into its Magnet set
// and any Entry fields not already known from the index page.
func ParseDetailPage(html string) (DetailResult, []Warning, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DetailResult{}, nil, pipeerr.New("parser.ParseDetailPage", pipeerr.Parse, err)
	}

	var result DetailResult
	var warnings []Warning

	if actor := strings.TrimSpace(doc.Find(".actor-section a").First().Text()); actor != "" {
		result.ActorUpdate = actor
	}
	if ratingText := strings.TrimSpace(doc.Find(".score-section .value").First().Text()); ratingText != "" {
		if r, ok := parseRating(ratingText); ok {
			result.RatingUpdate = r
			result.HasRatingUpdate = true
		}
	}
	if commentText := strings.TrimSpace(doc.Find(".score-section .comments").First().Text()); commentText != "" {
		if c, ok := parseComments(commentText); ok {
			result.CommentsUpdate = c
			result.HasCommentsUpdate = true
		}
	}

	doc.Find(".magnet-list .item").Each(func(_ int, s *goquery.Selection) {
		uri, _ := s.Find("a.magnet-link").First().Attr("href")
		name := strings.TrimSpace(s.Find(".magnet-name").First().Text())
		sizeText := strings.TrimSpace(s.Find(".magnet-size").First().Text())
		timestamp := strings.TrimSpace(s.Find(".magnet-time").First().Text())

		var tags []string
		s.Find(".magnet-tags .tag").Each(func(_ int, t *goquery.Selection) {
			if tag := strings.TrimSpace(t.Text()); tag != "" {
				tags = append(tags, tag)
			}
		})

		m := domain.Magnet{
			URI:       uri,
			Name:      name,
			Tags:      domain.NormalizeTags(tags),
			SizeText:  sizeText,
			Timestamp: timestamp,
		}
		if !m.Valid() {
			warnings = append(warnings, Warning{Msg: "skipped malformed magnet URI: " + uri})
			return
		}
		result.Magnets = append(result.Magnets, m)
	})

	return result, warnings, nil
}
