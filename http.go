package acmecore

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/certifi/gocertifi"
)

// DefaultResponseLimit is the response-size cap applied by NewHTTPClient,
// per spec.md §3 ("response-size cap 1 MiB").
const DefaultResponseLimit = 1 << 20

// HTTPResponse is the transport-agnostic result of one HTTP exchange. It
// replaces the source's callback struct ({ rv, status, headers,
// body_stream, req.baton }, spec.md §6) with a plain return value, per the
// "callback chains → structured control flow" design note in spec.md §9.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HttpClient is the transport collaborator pinned by spec.md §6. Crypto,
// TLS trust, timeouts, and retries are the implementation's concern; the
// request engine only needs GET/HEAD/POST with a body it can inspect.
type HttpClient interface {
	Get(ctx context.Context, url string) (*HTTPResponse, error)
	Head(ctx context.Context, url string) (*HTTPResponse, error)
	Post(ctx context.Context, url, contentType string, body []byte) (*HTTPResponse, error)
}

// httpClient is the default HttpClient, backed by net/http and capped to
// ResponseLimit bytes per response (spec.md §3's 1 MiB cap on Session.http).
type httpClient struct {
	inner         *http.Client
	ResponseLimit int64
}

// NewHTTPClient builds the default HttpClient. Its RootCAs are seeded from
// the Mozilla bundle vendored by gocertifi, rather than left to the host
// OS's trust store, the way kelseyhightower-kube-cert-manager's httpClient
// does.
func NewHTTPClient() (HttpClient, error) {
	pool, err := gocertifi.CACerts()
	if err != nil {
		return nil, fmt.Errorf("acmecore: loading CA bundle: %w", err)
	}
	return &httpClient{
		inner: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool},
			},
		},
		ResponseLimit: DefaultResponseLimit,
	}, nil
}

func (c *httpClient) Get(ctx context.Context, url string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodGet, url, "", nil)
}

func (c *httpClient) Head(ctx context.Context, url string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodHead, url, "", nil)
}

func (c *httpClient) Post(ctx context.Context, url, contentType string, body []byte) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodPost, url, contentType, body)
}

func (c *httpClient) do(ctx context.Context, method, url, contentType string, body []byte) (*HTTPResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := c.ResponseLimit
	if limit <= 0 {
		limit = DefaultResponseLimit
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("acmecore: reading response body: %w", err)
	}
	return &HTTPResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
