package acmecore

import "context"

// TLSSNI01DNSSuffix is appended to the hashed challenge hostname to form
// the tls-sni-01 validation domain name (spec.md §4.6).
const TLSSNI01DNSSuffix = ".acme.invalid"

// tlsSNI01Handler implements the (deprecated) tls-sni-01 challenge: an
// ephemeral, self-signed certificate whose SAN is a hostname derived from
// sha256(key_authz), served over TLS via SNI. Serving the certificate is
// the caller's concern; this handler materializes it.
type tlsSNI01Handler struct{}

func (tlsSNI01Handler) Respond(ctx context.Context, s *Session, a *Authz, chal *Challenge) error {
	candidate, notify, err := setupKeyAuthz(s, chal)
	if err != nil {
		return err
	}
	if s.store == nil {
		return newError(InvalidArgument, "tls-sni-01 challenge requires a configured ArtifactStore")
	}

	dhex := s.crypto.SHA256Hex([]byte(candidate))
	if len(dhex) < 33 {
		return newError(General, "sha256 digest too short to form a tls-sni-01 validation name")
	}
	challengeDNS := dhex[0:32] + "." + dhex[32:] + TLSSNI01DNSSuffix

	reuse := false
	if existingCertPEM, err := s.store.Load(GroupChallenges, challengeDNS, FileTLSSNI01Cert, KindCert); err == nil {
		if cert, err := decodeCertPEM(existingCertPEM); err == nil && s.crypto.CertCoversDomain(cert, challengeDNS) {
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
		cert, err := s.crypto.SelfSignCert(a.Domain, []string{challengeDNS}, key, tlsALPN01ValidityPeriod)
		if err != nil {
			return err
		}
		if err := s.store.Save(GroupChallenges, challengeDNS, FileTLSSNI01PKey, KindPKey, encodeKeyPEM(key)); err != nil {
			return err
		}
		if err := s.store.Save(GroupChallenges, challengeDNS, FileTLSSNI01Cert, KindCert, encodeCertPEM(cert)); err != nil {
			return err
		}
		notify = true
	}

	a.Dir = challengeDNS

	if notify {
		return notifyServer(ctx, s, chal, candidate)
	}
	return nil
}
