// Package httpclient configures the HTTP client used to call the elevation service.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const userAgent = "skidata-processor"

// NewOutbound returns a client whose idle pool fits maxConns concurrent
// requests to a single host. Every request carries the processor user agent.
func NewOutbound(timeout time.Duration, maxConns int) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxConns <= 0 {
		maxConns = 16
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          2 * maxConns,
		MaxIdleConnsPerHost:   maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: uaTransport{next: transport},
		Timeout:   timeout,
	}
}

type uaTransport struct {
	next http.RoundTripper
}

func (t uaTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", userAgent)
	return t.next.RoundTrip(r)
}
