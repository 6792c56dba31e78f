package torrentclient

import (
	"encoding/json"
	"time"
)

type rawTorrent struct {
	Hash     string `json:"hash"`
	Name     string `json:"name"`
	Category string `json:"category"`
	AddedOn  int64  `json:"added_on"`
}

func parseRecentTorrents(body []byte, since time.Time) ([]RecentTorrent, error) {
	var raw []rawTorrent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]RecentTorrent, 0, len(raw))
	for _, r := range raw {
		addedOn := time.Unix(r.AddedOn, 0)
		if addedOn.Before(since) {
			continue
		}
		out = append(out, RecentTorrent{Hash: r.Hash, Name: r.Name, Category: r.Category, AddedOn: addedOn})
	}
	return out, nil
}
