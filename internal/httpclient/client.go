// Package httpclient builds the shared HTTP client used by the cloud and
// local-server transcription backends.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

type Config struct {
	Timeout            time.Duration
	EnableHTTP2        bool
	InsecureSkipVerify bool
}

// New returns a client over a pooled transport so repeated uploads reuse connections.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-hosted endpoints
	}
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, err
		}
	}

	return &http.Client{Transport: tr, Timeout: cfg.Timeout}, nil
}
