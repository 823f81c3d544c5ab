package acmecore

import (
	"context"
	"encoding/hex"
	"time"
)

// tlsALPN01ValidityPeriod is the 7-day validity window spec.md §4.6
// assigns to tls-alpn-01 and tls-sni-01 certificates.
const tlsALPN01ValidityPeriod = 7 * 24 * time.Hour

// tlsALPN01Handler implements the tls-alpn-01 challenge (RFC 8737): an
// ephemeral, self-signed certificate carrying the sha256 digest of the
// key authorization in the id-pe-acmeIdentifier extension, served over
// TLS via the "acme-tls/1" ALPN protocol. Serving the certificate is the
// caller's concern; this handler materializes it.
type tlsALPN01Handler struct{}

func (tlsALPN01Handler) Respond(ctx context.Context, s *Session, a *Authz, chal *Challenge) error {
	candidate, notify, err := setupKeyAuthz(s, chal)
	if err != nil {
		return err
	}
	if s.store == nil {
		return newError(InvalidArgument, "tls-alpn-01 challenge requires a configured ArtifactStore")
	}

	digest := sha256Array(s.crypto.SHA256Hex([]byte(candidate)))

	reuse := false
	if existingCertPEM, err := s.store.Load(GroupChallenges, a.Domain, FileTLSALPN01Cert, KindCert); err == nil {
		if cert, err := decodeCertPEM(existingCertPEM); err == nil && s.crypto.CertCoversDomain(cert, a.Domain) {
			reuse = true
		}
	} else if err != ErrArtifactNotFound {
		return err
	}

	if !reuse {
		key, err := s.crypto.GenerateKey(EphemeralKeyBits)
		if err != nil {
			return err
		}
		cert, err := s.crypto.TLSALPN01Cert(a.Domain, digest, key, tlsALPN01ValidityPeriod)
		if err != nil {
			return err
		}
		if err := s.store.Save(GroupChallenges, a.Domain, FileTLSALPN01PKey, KindPKey, encodeKeyPEM(key)); err != nil {
			return err
		}
		if err := s.store.Save(GroupChallenges, a.Domain, FileTLSALPN01Cert, KindCert, encodeCertPEM(cert)); err != nil {
			return err
		}
		notify = true
	}

	a.Dir = a.Domain

	if notify {
		return notifyServer(ctx, s, chal, candidate)
	}
	return nil
}

// sha256Array re-derives the raw 32-byte digest from its hex
// representation; Crypto.SHA256Hex is the collaborator-facing form
// (spec.md §6 "sha256_digest_hex"), while certificate construction needs
// the raw bytes for the acmeIdentifier extension's DER encoding.
func sha256Array(hexDigest string) [32]byte {
	var out [32]byte
	hex.Decode(out[:], []byte(hexDigest))
	return out
}
