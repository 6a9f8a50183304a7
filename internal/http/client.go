package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/docbatch/internal/config"
)

// NewStreamingClient returns a client for long-lived progress streams and
// uploads. It shares proxy handling with ConfigureHTTPClient but has no
// overall timeout: a batch stream stays open for as long as the server keeps
// sending, and callers bound it with a context instead.
//
// HTTP/2 is attempted unless DISABLE_HTTP2=true or a proxy is active
// (FORCE_HTTP2=true overrides the proxy check). Compression is disabled so
// event lines are not held back by a gzip reader.
func NewStreamingClient(cfg *config.Config) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	if cfg != nil {
		var err error
		baseClient, err = ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		baseClient = &nethttp.Client{Transport: newTransport()}
	}
	baseClient.Timeout = 0

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; leave it alone.
		return baseClient, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	disable := os.Getenv("DISABLE_HTTP2") == "true" ||
		(ProxyActive(cfg, os.Getenv) && os.Getenv("FORCE_HTTP2") != "true")
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	return baseClient, nil
}
