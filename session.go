package acmecore

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/peterhellberg/link"
	"golang.org/x/net/publicsuffix"
)

// ProtocolVersion selects between ACMEv1 and ACMEv2 payload shapes, per
// spec.md §4.3 / §9 ("ACMEv1 vs v2"): v1 payloads carry a "resource"
// field and challenges key their URI as "uri"; v2 drops "resource" and
// uses "url".
type ProtocolVersion int

const (
	// V2 is the zero value so a zero-value Config defaults to it.
	V2 ProtocolVersion = iota
	V1
)

// DefaultAccountKeyBits is the default RSA account key size, per
// spec.md §3 ("bit size configurable, default 4096").
const DefaultAccountKeyBits = 4096

// Config configures a new Session. Loading Config from environment, flags,
// or a file is the caller's concern (spec.md §1 Non-goals); this struct and
// its defaulting rules are the library's.
type Config struct {
	// ServerURL is the ACME server's directory URL. Required, must be an
	// absolute URI.
	ServerURL string

	// AccountKey is the account's asymmetric key pair. If nil, one is
	// generated using AccountKeyBits (default DefaultAccountKeyBits).
	AccountKey *rsa.PrivateKey

	// AccountKeyBits sizes a generated AccountKey. Ignored if AccountKey
	// is set.
	AccountKeyBits int

	// HTTP is the HttpClient collaborator. Defaults to NewHTTPClient().
	HTTP HttpClient

	// Crypto is the Crypto collaborator. Defaults to NewCrypto().
	Crypto Crypto

	// Store is the ArtifactStore collaborator used by challenge handlers.
	// Optional: a Session that never responds to challenges need not set
	// one.
	Store ArtifactStore

	// Version selects the ACMEv1/v2 payload discriminator. Defaults to V2.
	Version ProtocolVersion
}

// Session owns the server URL, account key, nonce cache, directory cache,
// and HTTP client; it is the entry point for GET, POST, and GetJSON
// (spec.md §4.2). A Session is an exclusive resource: no two requests
// share one concurrently (spec.md §5).
type Session struct {
	ServerURL  string
	ShortName  string
	AccountKey *rsa.PrivateKey
	Version    ProtocolVersion

	http   HttpClient
	crypto Crypto
	store  ArtifactStore
	nonce  nonceCache

	dirMu sync.RWMutex
	dir   *directory

	// TermsOfService is the rel="terms-of-service" Link header URI
	// advertised alongside the directory response, if any. Surfacing it
	// is the caller's business (e.g. prompting for agreement before
	// registration); this package only captures it, parsing the header
	// with github.com/peterhellberg/link the way hlandau-acmeapi's api.go
	// does (SPEC_FULL.md §2).
	TermsOfService string
}

// NewSession validates cfg and constructs a Session. The session is usable
// without contacting the server yet; call Setup to resolve the directory.
func NewSession(cfg Config) (*Session, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || !u.IsAbs() {
		return nil, newError(InvalidArgument, "server URL %q is not an absolute URI", cfg.ServerURL)
	}

	key := cfg.AccountKey
	crypto := cfg.Crypto
	if crypto == nil {
		crypto = NewCrypto()
	}
	if key == nil {
		bits := cfg.AccountKeyBits
		if bits == 0 {
			bits = DefaultAccountKeyBits
		}
		key, err = crypto.GenerateKey(bits)
		if err != nil {
			return nil, fmt.Errorf("acmecore: generating account key: %w", err)
		}
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient, err = NewHTTPClient()
		if err != nil {
			return nil, err
		}
	}

	s := &Session{
		ServerURL:  cfg.ServerURL,
		ShortName:  shortName(u.Hostname()),
		AccountKey: key,
		Version:    cfg.Version,
		http:       httpClient,
		crypto:     crypto,
		store:      cfg.Store,
	}
	if d, ok := globalDirectoryCache.get(cfg.ServerURL); ok {
		s.dir = d
	}
	return s, nil
}

// shortName derives the log-tag hostname: the last <=16 characters of
// host, per spec.md §3.
func shortName(host string) string {
	if len(host) <= 16 {
		return host
	}
	return host[len(host)-16:]
}

// registrableDomain lower-cases domain, drops a trailing dot, and checks it
// against golang.org/x/net/publicsuffix the way
// kelseyhightower-kube-cert-manager's acme.go pulls in the same package
// for domain bookkeeping (SPEC_FULL.md §2). It returns an *Error of kind
// InvalidArgument if domain is empty or is itself a public suffix (e.g.
// "com"). A name under a TLD the list does not know is accepted, since
// publicsuffix then treats its last label as the suffix.
func registrableDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if domain == "" {
		return "", newError(InvalidArgument, "domain must not be empty")
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == domain {
		return "", newError(InvalidArgument, "domain %q is itself a public suffix", domain)
	}
	return domain, nil
}

// Setup fetches and parses the directory from ServerURL. It is idempotent:
// a successful Setup need not be repeated, and a later Setup or NewSession
// against the same ServerURL reuses the cached directory instead of
// fetching it. Setup calls that miss the cache at the same time each
// fetch the directory, and the last one to finish is the one cached.
func (s *Session) Setup(ctx context.Context) error {
	s.dirMu.Lock()
	if s.dir != nil {
		s.dirMu.Unlock()
		return nil
	}
	s.dirMu.Unlock()

	if d, ok := globalDirectoryCache.get(s.ServerURL); ok {
		s.dirMu.Lock()
		s.dir = d
		s.dirMu.Unlock()
		return nil
	}

	resp, err := s.http.Get(ctx, s.ServerURL)
	if err != nil {
		return fmt.Errorf("acmecore: fetching directory: %w", err)
	}
	s.nonce.refresh(resp.Header.Get("Replay-Nonce"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return inspectProblem(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
	}

	if tos, ok := link.ParseHeader(resp.Header)["terms-of-service"]; ok {
		s.TermsOfService = tos.URI
	}

	var d directory
	if err := json.Unmarshal(resp.Body, &d); err != nil {
		return newError(InvalidArgument, "directory response is not valid JSON: %v", err)
	}
	if !d.complete() {
		return newError(InvalidArgument, "directory response is missing one or more required endpoints")
	}

	s.dirMu.Lock()
	s.dir = &d
	s.dirMu.Unlock()
	globalDirectoryCache.put(s.ServerURL, &d)
	return nil
}

func (s *Session) directory() *directory {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	return s.dir
}

// GetJSON issues a GET and decodes the response body as JSON into v. On
// protocol failure it returns the classified error from inspectProblem.
func (s *Session) GetJSON(ctx context.Context, url string, v interface{}) error {
	resp, err := s.doGET(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return newError(InvalidArgument, "response is not valid JSON: %v", err)
	}
	return nil
}

// doGET performs an unsigned GET and refreshes the nonce cache from the
// response, classifying non-2xx responses via inspectProblem.
func (s *Session) doGET(ctx context.Context, url string) (*HTTPResponse, error) {
	resp, err := s.http.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	s.nonce.refresh(resp.Header.Get("Replay-Nonce"))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, inspectProblem(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
	}
	return resp, nil
}
