package acmecore

import "context"

// Deactivate POSTs { "status": "deactivated" } to a.URL, per spec.md
// §4.6 ("delete_authz"). On success it is logged.
//
// The C source this spec was distilled from (md_acme_authz_del) also
// clears the session's current account pointer on success; spec.md §9
// flags this as "incidental and may be a bug" and this implementation
// does not replicate it — deactivating one authorization has no bearing
// on the Session's account key or nonce state.
func (a *Authz) Deactivate(ctx context.Context, s *Session) error {
	payload := struct {
		Status string `json:"status"`
	}{Status: "deactivated"}

	if _, err := s.post(ctx, a.URL, "", payload); err != nil {
		return err
	}
	log.Debugf("authz %s: deactivated", a.URL)
	return nil
}
