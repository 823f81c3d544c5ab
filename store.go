package acmecore

import "errors"

// ArtifactKind distinguishes how an ArtifactStore value should be treated:
// raw text, an encoded private key, or an encoded certificate (spec.md
// §6).
type ArtifactKind int

const (
	KindText ArtifactKind = iota
	KindPKey
	KindCert
)

// Well-known artifact groups and filenames used by this package's
// challenge handlers (spec.md §6).
const (
	GroupChallenges = "CHALLENGES"

	FileHTTP01         = "HTTP01"
	FileTLSALPN01PKey  = "TLSALPN01_PKEY"
	FileTLSALPN01Cert  = "TLSALPN01_CERT"
	FileTLSSNI01PKey   = "TLSSNI01_PKEY"
	FileTLSSNI01Cert   = "TLSSNI01_CERT"
)

// ErrArtifactNotFound is returned by ArtifactStore.Load when no value is
// stored under the given group/dir/filename.
var ErrArtifactNotFound = errors.New("acmecore: artifact not found")

// ArtifactStore is the persistent artifact collaborator pinned by
// spec.md §6: named byte blobs, organized by group/domain/filename. A
// concrete implementation backed by BoltDB lives in this module's
// store/boltstore subpackage.
type ArtifactStore interface {
	Load(group, dir, filename string, kind ArtifactKind) ([]byte, error)
	Save(group, dir, filename string, kind ArtifactKind, value []byte) error
}
