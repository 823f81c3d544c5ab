// Package acmetest factors the httptest-server request decoding shared by
// this module's package-level tests, the same role the teacher's
// acme_test.go decodeJWSRequest helper plays, generalized across files.
package acmetest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
)

// jwsBody is the JWS Flattened JSON Serialization shape produced by
// gopkg.in/square/go-jose.v2's FullSerialize for a single signer.
type jwsBody struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// DecodeJWS reads a JWS request body from r, decodes its payload into v,
// and returns the decoded protected header as a map for assertions (e.g.
// on "nonce" or "url").
func DecodeJWS(t *testing.T, r *http.Request, v interface{}) map[string]interface{} {
	t.Helper()
	var body jwsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decoding JWS envelope: %v", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(body.Payload)
	if err != nil {
		t.Fatalf("decoding JWS payload: %v", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, v); err != nil {
			t.Fatalf("unmarshaling JWS payload: %v", err)
		}
	}

	protectedRaw, err := base64.RawURLEncoding.DecodeString(body.Protected)
	if err != nil {
		t.Fatalf("decoding JWS protected header: %v", err)
	}
	var protected map[string]interface{}
	if err := json.Unmarshal(protectedRaw, &protected); err != nil {
		t.Fatalf("unmarshaling JWS protected header: %v", err)
	}
	return protected
}

// NonceHandler returns an http.HandlerFunc suitable for serving HEAD
// requests during nonce-bootstrap tests: it sets Replay-Nonce and
// responds 200.
func NonceHandler(nonce string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", nonce)
	}
}
