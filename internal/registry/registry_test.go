package registry

import (
	"sync"
	"testing"
)

func TestTryRegisterWithinLimits(t *testing.T) {
	r := NewRegistry(10, 5)
	guard, err := r.TryRegister("acme", "conn-1")
	if err != nil {
		t.Fatalf("TryRegister: %v", err)
	}
	if r.GlobalCount() != 1 || r.TenantCount("acme") != 1 {
		t.Fatalf("unexpected counts: global=%d tenant=%d", r.GlobalCount(), r.TenantCount("acme"))
	}
	guard.Release()
	if r.GlobalCount() != 0 || r.TenantCount("acme") != 0 {
		t.Fatalf("expected counts to drop to zero after release")
	}
}

func TestTryRegisterTenantLimit(t *testing.T) {
	r := NewRegistry(100, 2)
	g1, err := r.TryRegister("acme", "c1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.TryRegister("acme", "c2")
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.TryRegister("acme", "c3")
	limitErr, ok := err.(*LimitError)
	if !ok || limitErr.Kind != TenantLimit {
		t.Fatalf("expected TenantLimit, got %v", err)
	}

	// A different tenant must still be admitted.
	g4, err := r.TryRegister("globex", "c4")
	if err != nil {
		t.Fatalf("different tenant should succeed: %v", err)
	}
	g1.Release()
	g4.Release()
}

func TestTryRegisterGlobalLimit(t *testing.T) {
	r := NewRegistry(1, 10)
	g1, err := r.TryRegister("acme", "c1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.TryRegister("globex", "c2")
	limitErr, ok := err.(*LimitError)
	if !ok || limitErr.Kind != GlobalLimit {
		t.Fatalf("expected GlobalLimit, got %v", err)
	}
	g1.Release()
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry(10, 10)
	g, err := r.TryRegister("acme", "c1")
	if err != nil {
		t.Fatal(err)
	}
	g.Release()
	g.Release()
	if r.GlobalCount() != 0 {
		t.Fatalf("double release decremented twice: count=%d", r.GlobalCount())
	}
}

func TestConcurrentRegistrationRespectsGlobalLimit(t *testing.T) {
	r := NewRegistry(5, 100)
	var wg sync.WaitGroup
	admitted := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.TryRegister("acme", string(rune('a'+i))); err == nil {
				admitted[i] = true
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 5 {
		t.Fatalf("expected exactly 5 admissions at global cap, got %d", count)
	}
}

func TestConcurrentRegistrationAcrossTenantsRespectsGlobalLimit(t *testing.T) {
	r := NewRegistry(5, 100)
	var wg sync.WaitGroup
	admitted := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each goroutine registers under its own tenant, so the
			// per-tenant critical section alone cannot serialize the
			// global check-and-increment across them.
			tenantID := string(rune('A' + i))
			if _, err := r.TryRegister(tenantID, "c1"); err == nil {
				admitted[i] = true
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 5 {
		t.Fatalf("expected exactly 5 admissions at global cap across distinct tenants, got %d", count)
	}
	if r.GlobalCount() != 5 {
		t.Fatalf("global count drifted from admissions: count=%d", r.GlobalCount())
	}
}
