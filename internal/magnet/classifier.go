// Package magnet implements the magnet classifier (C4): it assigns each
// detail-page Magnet to at most one TorrentType bucket and selects the
// preferred Magnet per bucket. The bucket rules and crack-marker priority
// order are ported line-for-line in spirit from
// original_source/utils/magnet_extractor.py, expressed as closed Go types
// instead of that function's dict-of-strings return value.
package magnet

import (
	"sort"
	"strconv"
	"strings"

	"github.com/opsmedia/catalogpipe/internal/domain"
)

// crackRank totals the priority order from the distilled spec's §4.4: a
// combined uncut+crack marker ranks highest, then uncut alone, then a
// crack-only suffix, then the base (non-crack) variant.
type crackRank int

const (
	rankNone crackRank = iota
	rankCrackOnly
	rankUncut
	rankUncutCrack
)

var uncutCrackMarkers = []string{"-UC", "-CU", "-U-C", "-C-U"}
var subtitleNameInfixes = []string{"含中字磁鏈", "含中字磁链"}
var hackedInfix = ".无码破解"
var subtitleTagMarkers = []string{"字幕", "subtitle"}
var fourKMarkers = []string{"-4k", "4k"}

func hasAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func hasSubtitleTag(m domain.Magnet) bool {
	for _, t := range m.Tags {
		lt := strings.ToLower(t)
		for _, marker := range subtitleTagMarkers {
			if strings.Contains(lt, strings.ToLower(marker)) {
				return true
			}
		}
	}
	return hasAny(m.Name, subtitleNameInfixes)
}

func isHacked(m domain.Magnet) bool {
	return hasAny(m.Name, uncutCrackMarkers) || strings.Contains(m.Name, "-U") || strings.Contains(m.Name, hackedInfix)
}

// classifyCrack ranks a hacked magnet's name by the §4.4 priority table. A
// plain crack suffix ranks as the combined uncut+crack tier too once the
// name also carries a subtitle marker — that combination is reserved for
// hacked_subtitle, not the crack-only tier hacked_no_subtitle uses.
func classifyCrack(m domain.Magnet) crackRank {
	switch {
	case hasAny(m.Name, uncutCrackMarkers):
		return rankUncutCrack
	case strings.Contains(m.Name, hackedInfix) && hasSubtitleTag(m):
		return rankUncutCrack
	case strings.Contains(m.Name, "-U") && !strings.Contains(m.Name, hackedInfix):
		return rankUncut
	case strings.Contains(m.Name, hackedInfix):
		return rankCrackOnly
	default:
		return rankNone
	}
}

func is4K(m domain.Magnet) bool {
	lower := strings.ToLower(m.Name)
	return hasAny(lower, fourKMarkers)
}

// Bucket is the selected Magnet and its size text for one TorrentType.
type Bucket struct {
	Magnet domain.Magnet
	Found  bool
}

// Classify assigns every magnet in magnets to at most one TorrentType
// bucket and selects, for each bucket, the preferred Magnet per §4.4:
// within a bucket, ties break by larger parsed size, then newer timestamp,
// then stable input order. Buckets with no Magnet are Found == false, never
// an empty string (IP9: classification is total and deterministic).
func Classify(magnets []domain.Magnet) map[domain.TorrentType]Bucket {
	var subtitleCandidates, hackedSubtitle, hackedNoSubtitle, k4, normal []domain.Magnet

	for _, m := range magnets {
		switch {
		case isHacked(m) && hasSubtitleTag(m):
			hackedSubtitle = append(hackedSubtitle, m)
		case isHacked(m):
			hackedNoSubtitle = append(hackedNoSubtitle, m)
		case hasSubtitleTag(m):
			subtitleCandidates = append(subtitleCandidates, m)
		case is4K(m):
			k4 = append(k4, m)
		default:
			normal = append(normal, m)
		}
	}

	result := make(map[domain.TorrentType]Bucket, 4)
	result[domain.Subtitle] = pickBest(subtitleCandidates)
	result[domain.HackedSubtitle] = pickBestByCrackRank(hackedSubtitle)
	result[domain.HackedNoSubtitle] = pickBestByCrackRank(hackedNoSubtitle)

	// no_subtitle: prefer a 4K magnet uniformly, per the distilled spec's
	// redesign note resolving the source's inconsistent behavior.
	if len(k4) > 0 {
		result[domain.NoSubtitle] = pickBest(k4)
	} else {
		result[domain.NoSubtitle] = pickBest(normal)
	}

	return result
}

// pickBest applies the §4.4 tie-break: larger parsed size, then newer
// timestamp (lexical, since the source's timestamps are already
// zero-padded strings), then stable input order.
func pickBest(candidates []domain.Magnet) Bucket {
	if len(candidates) == 0 {
		return Bucket{}
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma, mb := candidates[idx[a]], candidates[idx[b]]
		sa, sb := ParseSize(ma.SizeText), ParseSize(mb.SizeText)
		if sa != sb {
			return sa > sb
		}
		if ma.Timestamp != mb.Timestamp {
			return ma.Timestamp > mb.Timestamp
		}
		return idx[a] < idx[b]
	})
	return Bucket{Magnet: candidates[idx[0]], Found: true}
}

// pickBestByCrackRank breaks ties among multiple crack-variant candidates
// for the same entry using the §4.4 priority order (uncut+crack highest,
// then uncut, then crack-only, then base) before falling back to the
// generic size/timestamp/order tie-break.
func pickBestByCrackRank(candidates []domain.Magnet) Bucket {
	if len(candidates) == 0 {
		return Bucket{}
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma, mb := candidates[idx[a]], candidates[idx[b]]
		ra, rb := classifyCrack(ma), classifyCrack(mb)
		if ra != rb {
			return ra > rb
		}
		sa, sb := ParseSize(ma.SizeText), ParseSize(mb.SizeText)
		if sa != sb {
			return sa > sb
		}
		if ma.Timestamp != mb.Timestamp {
			return ma.Timestamp > mb.Timestamp
		}
		return idx[a] < idx[b]
	})
	return Bucket{Magnet: candidates[idx[0]], Found: true}
}

// ParseSize converts a human size string ("1.2 GB", "700MB") to bytes.
func ParseSize(sizeText string) int64 {
	s := strings.ToUpper(strings.TrimSpace(sizeText))
	if s == "" {
		return 0
	}
	var unit float64
	switch {
	case strings.HasSuffix(s, "GB"):
		unit = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		unit = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		unit = 1024
		s = strings.TrimSuffix(s, "KB")
	default:
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(v * unit)
}
