package proxy

import "net/url"

// parseHost extracts the host:port portion of a proxy URL for ledger rows,
// which never carry embedded credentials.
func parseHost(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}
