package acmecore

import "testing"

func TestNonceCacheTakeEmpty(t *testing.T) {
	var c nonceCache
	if _, ok := c.take(); ok {
		t.Error("take() on empty cache should report ok=false")
	}
}

func TestNonceCacheRefreshThenTake(t *testing.T) {
	var c nonceCache
	c.refresh("N1")
	n, ok := c.take()
	if !ok || n != "N1" {
		t.Errorf("take() = %q, %v; want %q, true", n, ok, "N1")
	}
	if _, ok := c.take(); ok {
		t.Error("take() should consume the nonce; second take() should fail")
	}
}

func TestNonceCacheRefreshIgnoresBlank(t *testing.T) {
	var c nonceCache
	c.refresh("N1")
	c.refresh("")
	if got := c.peek(); got != "N1" {
		t.Errorf("peek() = %q; want %q (blank refresh must not clobber)", got, "N1")
	}
}

func TestNonceCacheRefreshOverwrites(t *testing.T) {
	var c nonceCache
	c.refresh("N1")
	c.refresh("N2")
	if got := c.peek(); got != "N2" {
		t.Errorf("peek() = %q; want %q", got, "N2")
	}
}
