package application

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
)

type UpgraderOptions struct {
	// AllowedOrigins lists scheme://host values; "*" allows any origin.
	AllowedOrigins []string
	BufferSize     int
}

// NewUpgrader returns a websocket upgrader that accepts same-origin
// requests, requests without an Origin header and the allowed origins.
func NewUpgrader(opts UpgraderOptions) *websocket.Upgrader {
	size := opts.BufferSize
	if size <= 0 {
		size = 1024
	}
	allowed := make([]string, 0, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed = append(allowed, strings.TrimRight(strings.ToLower(o), "/"))
	}
	return &websocket.Upgrader{
		ReadBufferSize:  size,
		WriteBufferSize: size,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowed)
		},
	}
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(allowed, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.Contains(allowed, strings.ToLower(u.Scheme+"://"+u.Host))
}
