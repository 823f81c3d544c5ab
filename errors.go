// Copyright 2015 Google Inc. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package acmecore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error surfaced by this package. See spec.md §7.
type Kind int

const (
	General Kind = iota
	InvalidArgument
	BadRequest
	Forbidden
	NotFound
	AgainLater
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case BadRequest:
		return "bad request"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not found"
	case AgainLater:
		return "again later"
	case NotImplemented:
		return "not implemented"
	default:
		return "general"
	}
}

// Error is the classified error type returned by this package's
// operations. Transport, crypto and encoding failures are returned as
// plain (often fmt.Errorf-wrapped) errors instead. Type carries the ACME problem document's "type" URI when the
// failure came from a parsed problem document; it is empty for locally
// constructed errors.
type Error struct {
	Kind       Kind
	Type       string
	Detail     string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Detail, e.Type)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// problemDoc is an RFC-7807 "application/problem+json" error document.
type problemDoc struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// classify maps an ACME error "type" URI to an internal Kind. It strips
// the longest matching "urn:ietf:params:" or "urn:" prefix before
// comparing, case-insensitively, against the fixed table in spec.md §4.1.
// Unknown types, and every type not explicitly called out in the table,
// map to General.
func classify(typ string) Kind {
	suffix := strings.ToLower(stripURNPrefix(typ))
	switch suffix {
	case "acme:error:badcsr", "acme:error:badsignaturealgorithm",
		"acme:error:malformed", "acme:error:badrevocationreason":
		return InvalidArgument
	case "acme:error:invalidcontact", "acme:error:ratelimited",
		"acme:error:rejectedidentifier", "acme:error:unsupportedidentifier":
		return BadRequest
	case "acme:error:unauthorized":
		return Forbidden
	case "acme:error:useractionrequired":
		return AgainLater
	default:
		// badNonce, unsupportedContact, serverInternal, caa, dns,
		// connection, tls, incorrectResponse, and anything unlisted.
		return General
	}
}

func stripURNPrefix(typ string) string {
	const long = "urn:ietf:params:"
	const short = "urn:"
	if strings.HasPrefix(typ, long) {
		return typ[len(long):]
	}
	if strings.HasPrefix(typ, short) {
		return typ[len(short):]
	}
	return typ
}

// inspectProblem turns a non-2xx HTTP response into a classified *Error.
// A RFC-7807 body is parsed and classified via classify(), with its type
// and detail logged. Otherwise the HTTP status is mapped positionally.
func inspectProblem(status int, contentType string, body []byte) *Error {
	if isProblemJSON(contentType) {
		var p problemDoc
		if err := json.Unmarshal(body, &p); err == nil && p.Type != "" {
			log.Errorf("acme problem: type=%s detail=%s status=%d", p.Type, p.Detail, status)
			return &Error{Kind: classify(p.Type), Type: p.Type, Detail: p.Detail, HTTPStatus: status}
		}
	}
	return &Error{Kind: statusKind(status), Detail: http.StatusText(status), HTTPStatus: status}
}

func isProblemJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/problem+json")
}

func statusKind(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return InvalidArgument
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	default:
		return General
	}
}
