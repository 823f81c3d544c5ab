package acmecore

import (
	"context"
	"encoding/json"
)

// AuthzState is the authorization state machine of spec.md §3: created
// UNKNOWN, moves to PENDING/VALID/INVALID once the server reports a
// status. VALID and INVALID are terminal for the caller's state machine,
// though a PENDING authz may later become either.
type AuthzState int

const (
	StateUnknown AuthzState = iota
	StatePending
	StateValid
	StateInvalid
)

func (s AuthzState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

func parseAuthzState(status string) (AuthzState, bool) {
	switch status {
	case "pending":
		return StatePending, true
	case "valid":
		return StateValid, true
	case "invalid":
		return StateInvalid, true
	default:
		return StateUnknown, false
	}
}

// authzIdentifier is the ACME "identifier" object: { "type": "dns",
// "value": <domain> }.
type authzIdentifier struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// authzResource is the server's JSON body for an authorization resource,
// covering both the v1 "uri" and v2 "url" challenge-URI field names
// (spec.md §6).
type authzResource struct {
	Identifier authzIdentifier `json:"identifier"`
	Status     string          `json:"status"`
	Challenges []challengeWire `json:"challenges"`
}

// Authz is one domain's challenge bundle: spec.md §3 "Authorization".
type Authz struct {
	Domain   string
	URL      string
	State    AuthzState
	Dir      string
	Resource json.RawMessage

	challenges []Challenge
}

// NewAuthz returns a zero-initialized Authz: created UNKNOWN, fields
// populated by Register/Update.
func NewAuthz() *Authz {
	return &Authz{State: StateUnknown}
}

// Register performs the "new-authz" POST for domain, per spec.md §4.4.
// Before spending a round trip it rejects an empty domain or one that is
// itself a public suffix (see registrableDomain, SPEC_FULL.md §2), then
// reads the Location header into URL and decodes the body into Resource.
func (a *Authz) Register(ctx context.Context, s *Session, domain string) error {
	domain, err := registrableDomain(domain)
	if err != nil {
		return err
	}

	if err := s.Setup(ctx); err != nil {
		return err
	}

	payload := struct {
		Identifier authzIdentifier `json:"identifier"`
	}{Identifier: authzIdentifier{Type: "dns", Value: domain}}

	res, err := s.post(ctx, s.directory().NewAuthz, "new-authz", payload)
	if err != nil {
		return err
	}

	location := headerGet(res.Header, "Location")
	if location == "" {
		return newError(InvalidArgument, "new-authz response is missing a Location header")
	}

	a.Domain = domain
	a.URL = location
	a.Resource = res.JSON
	a.State = StateUnknown
	return a.parseChallenges(s)
}

// Update polls the authz URL and refreshes State and Domain from the
// server's response, per spec.md §4.4. An absent or unrecognized status
// on an otherwise-valid JSON body is InvalidArgument.
func (a *Authz) Update(ctx context.Context, s *Session) error {
	res, err := s.Get(ctx, a.URL)
	if err != nil {
		return err
	}
	a.Resource = res.JSON

	var body authzResource
	if err := json.Unmarshal(res.JSON, &body); err != nil {
		return newError(InvalidArgument, "authz response is not valid JSON: %v", err)
	}

	state, ok := parseAuthzState(body.Status)
	if !ok {
		log.Errorf("authz %s: unrecognized status %q", a.URL, body.Status)
		return newError(InvalidArgument, "authz response has missing or unrecognized status %q", body.Status)
	}
	a.State = state
	if body.Identifier.Value != "" {
		a.Domain = body.Identifier.Value
	}

	switch state {
	case StatePending, StateValid:
		log.Debugf("authz %s: status=%s", a.URL, state)
	default:
		log.Errorf("authz %s: status=%s", a.URL, state)
	}
	return a.parseChallenges(s)
}

func (a *Authz) parseChallenges(s *Session) error {
	var body authzResource
	if a.Resource == nil {
		return nil
	}
	if err := json.Unmarshal(a.Resource, &body); err != nil {
		return nil
	}
	challenges := make([]Challenge, len(body.Challenges))
	for i, w := range body.Challenges {
		challenges[i] = Challenge{
			Index: i,
			Type:  w.Type,
			URI:   w.uri(s.Version),
			Token: w.Token,
		}
	}
	a.challenges = challenges
	return nil
}

// Challenges returns the server-offered challenges parsed by the most
// recent Register/Update call.
func (a *Authz) Challenges() []Challenge { return a.challenges }

// authzJSON is the on-disk authz record, per spec.md §6 ("On-disk authz
// format"): domain, location (URL), dir, state (integer code).
type authzJSON struct {
	Domain   string `json:"domain"`
	Location string `json:"location"`
	Dir      string `json:"dir"`
	State    int    `json:"state"`
}

// ToJSON serializes the fields the caller's on-disk store persists:
// domain, url (as "location"), dir, state.
func (a *Authz) ToJSON() ([]byte, error) {
	return json.Marshal(authzJSON{
		Domain:   a.Domain,
		Location: a.URL,
		Dir:      a.Dir,
		State:    int(a.State),
	})
}

// AuthzFromJSON is the inverse of ToJSON.
func AuthzFromJSON(data []byte) (*Authz, error) {
	var j authzJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, newError(InvalidArgument, "authz record is not valid JSON: %v", err)
	}
	return &Authz{
		Domain: j.Domain,
		URL:    j.Location,
		Dir:    j.Dir,
		State:  AuthzState(j.State),
	}, nil
}

func headerGet(h httpHeader, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}
