package acmecore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestAuthzJSONRoundTrip is spec.md §8 testable property 6: ToJSON/
// AuthzFromJSON round-trips domain, url, dir, and state.
func TestAuthzJSONRoundTrip(t *testing.T) {
	a := NewAuthz()
	a.Domain = "example.com"
	a.URL = "https://ca.tld/authz/1"
	a.Dir = "example.com"
	a.State = StateValid

	data, err := a.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	got, err := AuthzFromJSON(data)
	if err != nil {
		t.Fatalf("AuthzFromJSON: %v", err)
	}
	if got.Domain != a.Domain || got.URL != a.URL || got.Dir != a.Dir || got.State != a.State {
		t.Errorf("round trip = %+v; want %+v", got, a)
	}
}

func TestAuthzFromJSONRejectsGarbage(t *testing.T) {
	if _, err := AuthzFromJSON([]byte("not json")); err == nil {
		t.Error("AuthzFromJSON(garbage) = nil error; want error")
	}
}

func TestUpdateStateMapping(t *testing.T) {
	cases := []struct {
		status string
		want   AuthzState
		isErr  bool
	}{
		{"pending", StatePending, false},
		{"valid", StateValid, false},
		{"invalid", StateInvalid, false},
		{"deactivated", StateUnknown, true},
		{"", StateUnknown, true},
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"identifier":{"type":"dns","value":"example.com"},"status":%q,"challenges":[]}`, tc.status)
			}))
			defer ts.Close()

			s := newTestSession(t, ts.URL)
			a := NewAuthz()
			a.URL = ts.URL

			err := a.Update(context.Background(), s)
			if tc.isErr {
				if err == nil {
					t.Fatal("Update() = nil; want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() = %v; want nil", err)
			}
			if a.State != tc.want {
				t.Errorf("State = %v; want %v", a.State, tc.want)
			}
			if a.Domain != "example.com" {
				t.Errorf("Domain = %q; want %q", a.Domain, "example.com")
			}
		})
	}
}

func TestParseChallengesV1UsesURIField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"identifier":{"type":"dns","value":"example.com"},"status":"pending","challenges":[{"type":"http-01","uri":"https://ca.tld/c/1","token":"T"}]}`)
	}))
	defer ts.Close()

	s, err := NewSession(Config{ServerURL: ts.URL, AccountKey: testKey, Version: V1})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	a := NewAuthz()
	a.URL = ts.URL
	if err := a.Update(context.Background(), s); err != nil {
		t.Fatalf("Update: %v", err)
	}
	chals := a.Challenges()
	if len(chals) != 1 || chals[0].URI != "https://ca.tld/c/1" {
		t.Errorf("Challenges() = %+v; want one challenge with URI from \"uri\" field", chals)
	}
}

func TestParseChallengesV2UsesURLField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"identifier":{"type":"dns","value":"example.com"},"status":"pending","challenges":[{"type":"http-01","url":"https://ca.tld/c/2","token":"T"}]}`)
	}))
	defer ts.Close()

	s, err := NewSession(Config{ServerURL: ts.URL, AccountKey: testKey})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	a := NewAuthz()
	a.URL = ts.URL
	if err := a.Update(context.Background(), s); err != nil {
		t.Fatalf("Update: %v", err)
	}
	chals := a.Challenges()
	if len(chals) != 1 || chals[0].URI != "https://ca.tld/c/2" {
		t.Errorf("Challenges() = %+v; want one challenge with URI from \"url\" field", chals)
	}
}

// TestRegisterRejectsPublicSuffix covers the guard registrableDomain adds
// ahead of spending a round trip to new-authz.
func TestRegisterRejectsPublicSuffix(t *testing.T) {
	s := newTestSession(t, "https://ca.tld/")
	a := NewAuthz()
	if err := a.Register(context.Background(), s, "com"); err == nil {
		t.Error("Register(\"com\") = nil; want InvalidArgument (bare public suffix)")
	}
}
