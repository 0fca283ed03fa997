package solana

import (
	"fmt"
	"net/url"
	"strconv"
)

// DeriveWebsocketURL maps an RPC endpoint to its pubsub endpoint: http becomes ws,
// https becomes wss, and an explicit port moves up by one.
func DeriveWebsocketURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("parse rpc url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported rpc url scheme %q", u.Scheme)
	}

	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("invalid rpc url port %q", port)
		}
		u.Host = u.Hostname() + ":" + strconv.Itoa(n+1)
	}
	return u.String(), nil
}
