// Package client holds what the terminal client's collaborator adapters
// share.
package client

import (
	"fmt"
	"net/url"
	"strings"
)

// WebSocketURL turns the http(s) server base into the ws(s) url of path,
// carrying token as the query parameter the server checks.
func WebSocketURL(base, path, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
