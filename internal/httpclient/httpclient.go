// Package httpclient is the shared HTTP plumbing for modules that
// pull a live transport stream over HTTP: a client tuned for
// long-lived streaming responses, a connect helper with backoff and
// Retry-After handling, and a per-host concurrency limiter so several
// sources reconnecting to one upstream do not stampede it.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Streaming returns a client for long-lived TS-over-HTTP responses.
// Connection setup and the response header are bounded; the body read
// is not, since a live stream never completes.
func Streaming() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}
