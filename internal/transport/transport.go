// Package transport provides the HTTP transport used for all upstream
// calls (catalog, commerce, auth services).
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// The upstream commerce platforms shopsync fronts often sit behind CDNs
// that rate-limit clients by TLS fingerprint (JA3). Go's standard TLS
// client stack has a distinctive fingerprint and gets throttled hard.
//
// NewUpstream builds a RoundTripper that presents a Chrome-like
// fingerprint via uTLS, letting ALPN pick h2 or http/1.1 and using Go's
// http2.Transport for HTTP/2 framing when negotiated.

// NewUpstream returns an http.RoundTripper for upstream service calls.
// Attempts HTTP/2 first and falls back to HTTP/1.1 when the server does
// not negotiate h2.
func NewUpstream(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialFingerprintTLS(ctx, dialer, network, addr)
	}

	return &upstreamTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialTLSContext:    dial,
			ForceAttemptHTTP2: false,
		},
	}
}

// NewClient returns an *http.Client with the upstream transport and the
// given timeout applied to whole requests.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewUpstream(timeout),
	}
}

type upstreamTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper. HTTP/2 first; servers that
// refuse h2 get a fresh HTTP/1.1 attempt.
func (t *upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	return t.h1.RoundTrip(req)
}

// dialFingerprintTLS establishes a TLS connection presenting the Chrome
// client hello.
func dialFingerprintTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
