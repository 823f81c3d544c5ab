package acmecore

import (
	"context"
	"fmt"
	"strings"
)

// challengeWire is the server's wire representation of one challenge
// entry. Field uri/url selection is version-dependent (spec.md §6).
type challengeWire struct {
	Type  string `json:"type"`
	URI   string `json:"uri"`
	URL   string `json:"url"`
	Token string `json:"token"`
}

func (w challengeWire) uri(v ProtocolVersion) string {
	if v == V2 {
		return w.URL
	}
	return w.URI
}

// Challenge is a specific proof method offered on an authz, per spec.md
// §3.
type Challenge struct {
	Index    int
	Type     string
	URI      string
	Token    string
	KeyAuthz string
}

// keyAuthorization computes token + "." + base64url(sha256(JWK
// thumbprint of account_key)), per spec.md §3. It is a pure function of
// (token, account key): recomputing must always agree (spec.md §8
// testable property 4).
func keyAuthorization(s *Session, token string) (string, error) {
	thumb, err := s.crypto.KeyThumbprint(s.AccountKey)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}

// Handler materializes a challenge's proof artifacts and notifies the
// server. Implementations register themselves in the package-level
// registry via RegisterHandler, per spec.md §9 ("Challenge plug-ins: a
// registry keyed by challenge name").
type Handler interface {
	// Respond performs setup_key_authz, writes whatever artifacts the
	// challenge type requires into store, and if notification is needed,
	// POSTs the acknowledgement to chal.URI.
	Respond(ctx context.Context, s *Session, a *Authz, chal *Challenge) error
}

var handlerRegistry = map[string]Handler{}

// RegisterHandler registers a Handler for a challenge type name (e.g.
// "http-01"), overriding any previously registered handler of the same
// name — the same override semantics as
// hlandau-acme/responder.RegisterResponder (DESIGN.md grounding).
func RegisterHandler(challengeType string, h Handler) {
	handlerRegistry[strings.ToLower(challengeType)] = h
}

func init() {
	RegisterHandler("http-01", http01Handler{})
	RegisterHandler("tls-alpn-01", tlsALPN01Handler{})
	RegisterHandler("tls-sni-01", tlsSNI01Handler{})
}

// Dispatch selects a challenge from a.Challenges() in preferences order
// (spec.md §4.5 / §8 testable property 5: the first preferred type that
// appears in the offered set wins, independent of the offered set's
// order) and invokes its handler.
//
// If no preferred type is offered, it returns an InvalidArgument error
// enumerating both sets (spec.md §8 scenario S6). If the selected type has
// no registered handler, it returns NotImplemented.
func Dispatch(ctx context.Context, s *Session, a *Authz, preferences []string) (*Challenge, error) {
	offered := a.Challenges()

	var selected *Challenge
	for _, pref := range preferences {
		for i := range offered {
			if strings.EqualFold(offered[i].Type, pref) {
				selected = &offered[i]
				break
			}
		}
		if selected != nil {
			break
		}
	}

	if selected == nil {
		offeredTypes := make([]string, len(offered))
		for i, c := range offered {
			offeredTypes[i] = c.Type
		}
		log.Errorf("authz %s: no preferred challenge offered: offered=%v preferred=%v", a.URL, offeredTypes, preferences)
		return nil, newError(InvalidArgument, "no preferred challenge type offered: offered=%v preferred=%v", offeredTypes, preferences)
	}

	handler, ok := handlerRegistry[strings.ToLower(selected.Type)]
	if !ok {
		return nil, newError(NotImplemented, "no handler registered for challenge type %q", selected.Type)
	}
	if err := handler.Respond(ctx, s, a, selected); err != nil {
		return nil, err
	}
	return selected, nil
}

// setupKeyAuthz implements the shared handler preamble of spec.md §4.6:
// compute the candidate key authorization and decide whether it must be
// (re)written and the server notified.
//
// If chal already carries a value that disagrees with the freshly
// computed candidate (account key rotation), it is discarded. If chal
// carries no value, the candidate is installed. Either way notify is true
// whenever chal.KeyAuthz ends up differing from what was there before this
// call.
func setupKeyAuthz(s *Session, chal *Challenge) (candidate string, notify bool, err error) {
	candidate, err = keyAuthorization(s, chal.Token)
	if err != nil {
		return "", false, fmt.Errorf("acmecore: computing key authorization: %w", err)
	}
	if chal.KeyAuthz != candidate {
		chal.KeyAuthz = candidate
		notify = true
	}
	return candidate, notify, nil
}

// notifyServer POSTs the challenge-acceptance acknowledgement to
// chal.URI, per spec.md §4.6: the v1 payload carries "resource" (added by
// encodePayload) alongside "keyAuthorization"; v2 carries only
// "keyAuthorization".
func notifyServer(ctx context.Context, s *Session, chal *Challenge, keyAuthz string) error {
	payload := struct {
		KeyAuthorization string `json:"keyAuthorization"`
	}{KeyAuthorization: keyAuthz}

	_, err := s.post(ctx, chal.URI, "challenge", payload)
	if err != nil {
		return err
	}
	log.Debugf("challenge %s: notified server, type=%s", chal.URI, chal.Type)
	return nil
}
