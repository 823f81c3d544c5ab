package acmecore

import (
	"context"
	"encoding/json"
	"fmt"
)

// result is the outcome of one signed or unsigned ACME exchange: the
// transport-level response plus, when the body parsed as JSON, the raw
// decoded document. This is the structured-result replacement for the
// source's on_json/on_res callback pair (spec.md §9 design note).
type result struct {
	StatusCode int
	Header     httpHeader
	JSON       json.RawMessage // nil if the body did not parse as JSON
	Body       []byte
}

// httpHeader is a thin alias kept local to avoid importing net/http into
// every file that only needs header lookups.
type httpHeader = headerGetter

type headerGetter interface {
	Get(string) string
}

// Get issues an unsigned GET and returns its parsed result, per spec.md
// §4.2 ("GET(...)").
func (s *Session) Get(ctx context.Context, url string) (*result, error) {
	resp, err := s.doGET(ctx, url)
	if err != nil {
		return nil, err
	}
	r := &result{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
	if len(resp.Body) > 0 {
		var raw json.RawMessage
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			r.JSON = raw
		}
	}
	return r, nil
}

// Post issues a signed POST to url carrying payload, per spec.md §4.2
// ("POST(url, on_init, on_json, on_res, baton)"). resource is the ACMEv1
// "resource" field value, ignored under V2.
func (s *Session) Post(ctx context.Context, url, resource string, payload interface{}) (*result, error) {
	return s.post(ctx, url, resource, payload)
}

// post runs the full signed-request lifecycle for one ACME POST call:
// §4.3's preconditions (resolve directory, harvest a nonce if needed,
// consume it, sign), dispatch, and response handling (§4.3 on_response).
//
// resource is the ACMEv1 "resource" field value; it is folded into the
// payload automatically when s.Version == V1, and omitted for V2 (the
// payload the caller passes already excludes "resource" in both cases —
// this function adds it for V1 by wrapping the marshaled JSON).
func (s *Session) post(ctx context.Context, targetURL string, resource string, payload interface{}) (*result, error) {
	if err := s.Setup(ctx); err != nil {
		if s.directory() == nil {
			return nil, err
		}
	}

	nonce, err := s.takeNonce(ctx)
	if err != nil {
		return nil, err
	}

	body, err := s.encodePayload(resource, payload)
	if err != nil {
		return nil, err
	}

	protected := map[string]interface{}{}
	if s.Version == V2 {
		protected["url"] = targetURL
	}

	signed, err := s.crypto.SignJWS(body, protected, nonce, s.AccountKey)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Post(ctx, targetURL, "application/jose+json", signed)
	if err != nil {
		return nil, err
	}
	return s.handleResponse(resp)
}

// takeNonce consumes the cached nonce, harvesting one via HEAD to the
// new-reg endpoint first if the cache is empty (spec.md §4.3 precondition
// 2-3, §5 "Nonce discipline").
func (s *Session) takeNonce(ctx context.Context) (string, error) {
	if n, ok := s.nonce.take(); ok {
		return n, nil
	}
	d := s.directory()
	if d == nil {
		return "", newError(InvalidArgument, "directory not resolved")
	}
	resp, err := s.http.Head(ctx, d.NewReg)
	if err != nil {
		return "", fmt.Errorf("acmecore: harvesting nonce: %w", err)
	}
	nonce := resp.Header.Get("Replay-Nonce")
	if nonce == "" {
		return "", newError(General, "server did not supply a Replay-Nonce header")
	}
	// The harvest HEAD's nonce is consumed directly rather than round-
	// tripped through nonce.refresh+take: it was fetched for exactly this
	// request.
	return nonce, nil
}

// encodePayload marshals payload to JSON, adding a top-level "resource"
// field for ACMEv1 sessions per spec.md §6 ("the core tolerates both v1
// ... and v2").
func (s *Session) encodePayload(resource string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("acmecore: encoding request payload: %w", err)
	}
	if s.Version != V1 || resource == "" {
		return raw, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("acmecore: encoding request payload: %w", err)
	}
	m["resource"] = resource
	return json.Marshal(m)
}

// handleResponse implements spec.md §4.3's on_response: refresh the nonce
// from whatever header arrived, then either classify a problem document or
// hand back the parsed body.
func (s *Session) handleResponse(resp *HTTPResponse) (*result, error) {
	s.nonce.refresh(resp.Header.Get("Replay-Nonce"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, inspectProblem(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
	}

	r := &result{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
	if len(resp.Body) > 0 {
		var raw json.RawMessage
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			r.JSON = raw
		}
	}
	return r, nil
}
