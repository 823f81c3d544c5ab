package acmecore

import "sync"

// directory mirrors the ACME server's endpoint manifest. Field names
// follow the v1/v2 wire document ("new-authz", "new-cert", "new-reg",
// "revoke-cert"); spec.md §4.2 requires all four to be present.
type directory struct {
	NewAuthz   string `json:"new-authz"`
	NewCert    string `json:"new-cert"`
	NewReg     string `json:"new-reg"`
	RevokeCert string `json:"revoke-cert"`
}

func (d *directory) complete() bool {
	return d.NewAuthz != "" && d.NewCert != "" && d.NewReg != "" && d.RevokeCert != ""
}

// directoryCache memoizes a resolved directory by server URL so that
// multiple Sessions against the same CA need not refetch it. Grounded on
// original_source/src/acme/md_acme.c's file-scoped directory cache
// (see SPEC_FULL.md §3).
type directoryCache struct {
	mu  sync.Mutex
	dir map[string]*directory
}

var globalDirectoryCache = &directoryCache{dir: make(map[string]*directory)}

func (c *directoryCache) get(serverURL string) (*directory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dir[serverURL]
	return d, ok
}

func (c *directoryCache) put(serverURL string, d *directory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir[serverURL] = d
}
