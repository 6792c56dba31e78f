package domain

import "strings"

// MagnetScheme is the required prefix of every well-formed Magnet.URI.
const MagnetScheme = "magnet:"

// Magnet is a torrent descriptor attached to a detail page.
type Magnet struct {
	URI       string
	Name      string
	Tags      []string
	SizeText  string
	SizeBytes int64
	Timestamp string
}

// Valid reports whether the magnet has a well-formed URI.
func (m Magnet) Valid() bool {
	return strings.HasPrefix(m.URI, MagnetScheme)
}

// HasTag reports whether the magnet carries the given lowercase tag.
func (m Magnet) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// NormalizeTags returns a trimmed, lowercased copy of tags, per the Magnet
// invariant; the input slice is left unchanged.
func NormalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return out
}
