package acmecore

import (
	"bytes"
	"context"
)

// http01Handler implements the http-01 challenge: a file named by the
// challenge token, containing the key authorization, served over plain
// HTTP at /.well-known/acme-challenge/<token>. Serving the file is the
// caller's concern (spec.md §1 "web server integration is the caller's
// concern"); this handler only materializes the artifact and notifies the
// server.
type http01Handler struct{}

func (http01Handler) Respond(ctx context.Context, s *Session, a *Authz, chal *Challenge) error {
	candidate, notify, err := setupKeyAuthz(s, chal)
	if err != nil {
		return err
	}

	if s.store == nil {
		return newError(InvalidArgument, "http-01 challenge requires a configured ArtifactStore")
	}

	existing, err := s.store.Load(GroupChallenges, a.Domain, FileHTTP01, KindText)
	if err != nil && err != ErrArtifactNotFound {
		return err
	}
	if err == ErrArtifactNotFound || !bytes.Equal(existing, []byte(candidate)) {
		if err := s.store.Save(GroupChallenges, a.Domain, FileHTTP01, KindText, []byte(candidate)); err != nil {
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
