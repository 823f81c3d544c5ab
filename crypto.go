package acmecore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	jose "gopkg.in/square/go-jose.v2"
)

// acmeIdentifierOID is the id-pe-acmeIdentifier certificate extension OID
// used by tls-alpn-01 (RFC 8737 §3).
var acmeIdentifierOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// Crypto is the cryptographic collaborator pinned by spec.md §6. The
// default implementation below is backed by crypto/rsa, crypto/x509, and
// gopkg.in/square/go-jose.v2 — the same JWS library the teacher
// (google-acme/jws.go) and the wider pack (hlandau-acmeapi, lego) use.
type Crypto interface {
	GenerateKey(bits int) (*rsa.PrivateKey, error)
	SignJWS(payload []byte, protected map[string]interface{}, nonce string, key *rsa.PrivateKey) ([]byte, error)
	KeyThumbprint(key *rsa.PrivateKey) (string, error)
	SHA256Hex(data []byte) string
	SelfSignCert(cn string, sans []string, key *rsa.PrivateKey, validity time.Duration) (*x509.Certificate, error)
	TLSALPN01Cert(domain string, digest [32]byte, key *rsa.PrivateKey, validity time.Duration) (*x509.Certificate, error)
	CertCoversDomain(cert *x509.Certificate, name string) bool
}

type defaultCrypto struct{}

// NewCrypto returns the default Crypto implementation.
func NewCrypto() Crypto { return defaultCrypto{} }

func (defaultCrypto) GenerateKey(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}

// staticNonceSource feeds exactly one nonce to a go-jose signer, the same
// shape as the teacher's jws.go staticNonceSource.
type staticNonceSource string

func (s staticNonceSource) Nonce() (string, error) { return string(s), nil }

// SignJWS produces a JWS Flattened JSON Serialization of payload, signed
// with key and carrying protected as extra protected headers (e.g. "url",
// "kid" for ACMEv2) plus the anti-replay nonce. The account key's JWK is
// embedded, binding the request to the account per spec.md §3.
func (defaultCrypto) SignJWS(payload []byte, protected map[string]interface{}, nonce string, key *rsa.PrivateKey) ([]byte, error) {
	opts := &jose.SignerOptions{NonceSource: staticNonceSource(nonce)}
	opts.EmbedJWK = true
	for k, v := range protected {
		opts = opts.WithHeader(jose.HeaderKey(k), v)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, opts)
	if err != nil {
		return nil, fmt.Errorf("acmecore: constructing JWS signer: %w", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("acmecore: signing JWS payload: %w", err)
	}
	return []byte(sig.FullSerialize()), nil
}

// KeyThumbprint is base64url(SHA-256(JWK(key))), per RFC 7638, used to
// derive key authorizations (spec.md §3 "Challenge").
func (defaultCrypto) KeyThumbprint(key *rsa.PrivateKey) (string, error) {
	jwk := jose.JSONWebKey{Key: &key.PublicKey}
	th, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("acmecore: computing JWK thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(th), nil
}

func (defaultCrypto) SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (defaultCrypto) SelfSignCert(cn string, sans []string, key *rsa.PrivateKey, validity time.Duration) (*x509.Certificate, error) {
	return selfSign(cn, sans, nil, key, validity)
}

func (defaultCrypto) TLSALPN01Cert(domain string, digest [32]byte, key *rsa.PrivateKey, validity time.Duration) (*x509.Certificate, error) {
	extValue, err := asn1.Marshal(digest[:])
	if err != nil {
		return nil, fmt.Errorf("acmecore: encoding acmeIdentifier extension: %w", err)
	}
	ext := pkix.Extension{Id: acmeIdentifierOID, Critical: true, Value: extValue}
	return selfSign(domain, []string{domain}, []pkix.Extension{ext}, key, validity)
}

func selfSign(cn string, sans []string, extraExts []pkix.Extension, key *rsa.PrivateKey, validity time.Duration) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("acmecore: generating certificate serial: %w", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		DNSNames:              sans,
		BasicConstraintsValid: true,
		ExtraExtensions:       extraExts,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("acmecore: self-signing certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

func (defaultCrypto) CertCoversDomain(cert *x509.Certificate, name string) bool {
	if cert == nil {
		return false
	}
	return cert.VerifyHostname(name) == nil
}
