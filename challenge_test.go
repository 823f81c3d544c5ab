package acmecore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alvaro-octal/acmecore/internal/acmetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDispatchSelectionOrder is spec.md §8 testable property 5: the
// selected challenge is the first preference that appears in the offered
// set, independent of the offered set's order.
func TestDispatchSelectionOrder(t *testing.T) {
	offered := []Challenge{
		{Type: "tls-alpn-01", URI: "https://ca.tld/c/1"},
		{Type: "http-01", URI: "https://ca.tld/c/2"},
	}

	s, _ := NewSession(Config{ServerURL: "https://ca.tld/", AccountKey: testKey})
	a := NewAuthz()
	a.Domain = "example.com"
	a.challenges = offered

	// Preferences list http-01 first even though the server offered
	// tls-alpn-01 first: http-01 must win.
	RegisterHandler("http-01", recordingHandler{})
	defer RegisterHandler("http-01", http01Handler{})

	selected, err := Dispatch(context.Background(), s, a, []string{"http-01", "tls-alpn-01"})
	require.NoError(t, err)
	assert.Equal(t, "http-01", selected.Type)
}

type recordingHandler struct{}

func (recordingHandler) Respond(ctx context.Context, s *Session, a *Authz, chal *Challenge) error {
	return nil
}

// TestDispatchNoMatch is spec.md §8 scenario S6: no preferred challenge is
// offered.
func TestDispatchNoMatch(t *testing.T) {
	offered := []Challenge{{Type: "http-01"}, {Type: "tls-alpn-01"}}
	s, _ := NewSession(Config{ServerURL: "https://ca.tld/", AccountKey: testKey})
	a := NewAuthz()
	a.URL = "https://ca.tld/authz/1"
	a.challenges = offered

	_, err := Dispatch(context.Background(), s, a, []string{"dns-01"})
	require.Error(t, err)
	acmeErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, InvalidArgument, acmeErr.Kind)
}

func TestDispatchUnhandledType(t *testing.T) {
	offered := []Challenge{{Type: "proofOfPossession-01"}}
	s, _ := NewSession(Config{ServerURL: "https://ca.tld/", AccountKey: testKey})
	a := NewAuthz()
	a.challenges = offered

	_, err := Dispatch(context.Background(), s, a, []string{"proofOfPossession-01"})
	require.Error(t, err)
	acmeErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, NotImplemented, acmeErr.Kind)
}

// TestHTTP01HappyPath is spec.md §8 scenario S3.
func TestHTTP01HappyPath(t *testing.T) {
	var notified bool
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"new-authz":%q,"new-cert":%q,"new-reg":%q,"revoke-cert":%q}`,
			serverURL+"/new-authz", serverURL+"/new-cert", serverURL+"/new-reg", serverURL+"/revoke-cert")
	})
	mux.HandleFunc("/new-reg", acmetest.NonceHandler("N1"))
	mux.HandleFunc("/challenge/1", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Resource         string `json:"resource"`
			KeyAuthorization string `json:"keyAuthorization"`
		}
		acmetest.DecodeJWS(t, r, &payload)
		notified = true
		if payload.Resource != "challenge" {
			t.Errorf("payload.Resource = %q; want %q", payload.Resource, "challenge")
		}
		w.WriteHeader(http.StatusAccepted)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	serverURL = ts.URL

	store := newMemStore()
	s, err := NewSession(Config{ServerURL: ts.URL, AccountKey: testKey, Store: store, Version: V1})
	require.NoError(t, err)
	require.NoError(t, s.Setup(context.Background()))

	thumb, err := s.crypto.KeyThumbprint(s.AccountKey)
	require.NoError(t, err)

	a := NewAuthz()
	a.Domain = "example.com"
	chal := &Challenge{Type: "http-01", Token: "T", URI: ts.URL + "/challenge/1"}

	h := http01Handler{}
	require.NoError(t, h.Respond(context.Background(), s, a, chal))

	assert.True(t, notified)
	assert.Equal(t, "example.com", a.Dir)
	wantKeyAuthz := "T." + thumb
	assert.Equal(t, wantKeyAuthz, chal.KeyAuthz)

	stored, err := store.Load(GroupChallenges, "example.com", FileHTTP01, KindText)
	require.NoError(t, err)
	assert.Equal(t, wantKeyAuthz, string(stored))
}

// TestHTTP01ArtifactReuseSkipsNotify covers the non-divergence path added
// by SPEC_FULL.md §3: a stored key authorization that already matches the
// freshly computed candidate must not be rewritten, and must not trigger
// a second server notification.
func TestHTTP01ArtifactReuseSkipsNotify(t *testing.T) {
	store := newMemStore()
	s, err := NewSession(Config{ServerURL: "https://ca.tld/", AccountKey: testKey, Store: store})
	require.NoError(t, err)

	thumb, err := s.crypto.KeyThumbprint(s.AccountKey)
	require.NoError(t, err)

	a := NewAuthz()
	a.Domain = "example.com"
	chal := &Challenge{Type: "http-01", Token: "T"}

	require.NoError(t, store.Save(GroupChallenges, "example.com", FileHTTP01, KindText, []byte("T."+thumb)))

	h := http01Handler{}
	chal.URI = "http://unreachable.invalid/should-not-be-called"
	// Pre-populate chal.KeyAuthz to the candidate value so setupKeyAuthz
	// reports notify=false, and the stored artifact already matches, so
	// neither path should attempt to reach chal.URI.
	chal.KeyAuthz = "T." + thumb
	require.NoError(t, h.Respond(context.Background(), s, a, chal))
}

// TestTLSSNI01DNSName is spec.md §8 scenario S4.
func TestTLSSNI01DNSName(t *testing.T) {
	store := newMemStore()
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"new-authz":%q,"new-cert":%q,"new-reg":%q,"revoke-cert":%q}`,
			serverURL+"/new-authz", serverURL+"/new-cert", serverURL+"/new-reg", serverURL+"/revoke-cert")
	})
	mux.HandleFunc("/new-reg", acmetest.NonceHandler("N1"))
	mux.HandleFunc("/challenge/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	serverURL = ts.URL

	s, err := NewSession(Config{ServerURL: ts.URL, AccountKey: testKey, Store: store})
	require.NoError(t, err)
	require.NoError(t, s.Setup(context.Background()))

	thumb, err := s.crypto.KeyThumbprint(s.AccountKey)
	require.NoError(t, err)
	keyAuthz := "T." + thumb
	dhex := s.crypto.SHA256Hex([]byte(keyAuthz))
	require.Len(t, dhex, 64)
	wantDNS := dhex[0:32] + "." + dhex[32:] + TLSSNI01DNSSuffix

	a := NewAuthz()
	a.Domain = "example.com"
	chal := &Challenge{Type: "tls-sni-01", Token: "T", URI: ts.URL + "/challenge/1"}

	h := tlsSNI01Handler{}
	require.NoError(t, h.Respond(context.Background(), s, a, chal))

	assert.Equal(t, wantDNS, a.Dir)

	certPEM, err := store.Load(GroupChallenges, wantDNS, FileTLSSNI01Cert, KindCert)
	require.NoError(t, err)
	cert, err := decodeCertPEM(certPEM)
	require.NoError(t, err)
	assert.True(t, s.crypto.CertCoversDomain(cert, wantDNS))
}
