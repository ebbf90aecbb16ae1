package remote

import (
	"testing"
	"time"
)

func TestPoolReusesReleasedClient(t *testing.T) {
	p := NewPool("", time.Second)

	h1, err := p.Acquire("us-east-1", "bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := h1.Client()
	h1.Release(false)

	h2, err := p.Acquire("us-east-1", "bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2.Client() != first {
		t.Fatalf("expected the released client to be reused")
	}
}

func TestPoolDropsTaintedClient(t *testing.T) {
	p := NewPool("", time.Second)

	h1, err := p.Acquire("us-east-1", "bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := h1.Client()
	h1.Release(true) // tainted: must not be returned to the stack

	h2, err := p.Acquire("us-east-1", "bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2.Client() == first {
		t.Fatalf("expected a tainted client to be discarded, not reused")
	}
}

func TestPoolEvictsAfterMaxReuse(t *testing.T) {
	p := NewPool("", time.Second)

	var first *Handle
	for i := 0; i < MaxClientReuse; i++ {
		h, err := p.Acquire("us-east-1", "bucket")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i == 0 {
			first = h
		}
		h.Release(false)
	}

	h, err := p.Acquire("us-east-1", "bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Client() == first.Client() {
		t.Fatalf("expected client to be evicted after reaching MaxClientReuse")
	}
}

func TestPoolKeysAreIsolatedByZoneAndBucket(t *testing.T) {
	p := NewPool("", time.Second)

	ha, err := p.Acquire("us-east-1", "bucket-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ha.Release(false)

	hb, err := p.Acquire("eu-west-1", "bucket-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hb.Client() == ha.Client() {
		t.Fatalf("expected distinct zones to get distinct client stacks")
	}
}

func TestConfigureProxyRejectsUnsupportedScheme(t *testing.T) {
	if _, err := NewPool("ftp://proxy.example.com", time.Second).newClient(); err == nil {
		t.Fatalf("expected an error for an unsupported proxy scheme")
	}
}
