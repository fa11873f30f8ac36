package wire

import "testing"

func TestEnvCacheHitMiss(t *testing.T) {
	c := NewEnvCache(2)

	if _, ok := c.Get(1); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(1, []EnvPair{{Key: "A", Value: "1"}})
	got, ok := c.Get(1)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != 1 || got[0].Key != "A" {
		t.Fatalf("got %+v", got)
	}
}

func TestEnvCacheFIFOEviction(t *testing.T) {
	c := NewEnvCache(2)
	c.Put(1, nil)
	c.Put(2, nil)
	c.Put(3, nil) // should evict 1

	if _, ok := c.Get(1); ok {
		t.Fatal("expected fingerprint 1 to be evicted")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("expected fingerprint 2 to remain")
	}
	if _, ok := c.Get(3); !ok {
		t.Fatal("expected fingerprint 3 to remain")
	}
	if c.Len() != 2 {
		t.Fatalf("got len %d, want 2", c.Len())
	}
}

func TestEnvCacheEntriesImmutable(t *testing.T) {
	c := NewEnvCache(5)
	c.Put(1, []EnvPair{{Key: "A", Value: "1"}})
	c.Put(1, []EnvPair{{Key: "A", Value: "2"}}) // should be ignored

	got, _ := c.Get(1)
	if got[0].Value != "1" {
		t.Fatalf("entry was mutated: got %q, want %q", got[0].Value, "1")
	}
}
