package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestGetPoolCreatesAndMigrates(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 5, 5*time.Second)

	db, err := m.GetPool("tenant-a")
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM work_items").Scan(&count); err != nil {
		t.Fatalf("query migrated schema: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty work_items table, got %d rows", count)
	}

	if _, err := os.Stat(filepath.Join(root, "tenant-a.db")); err != nil {
		t.Fatalf("expected tenant storage file to exist: %v", err)
	}
}

func TestGetPoolReturnsSamePoolOnSecondCall(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 5, 5*time.Second)

	db1, err := m.GetPool("tenant-b")
	if err != nil {
		t.Fatal(err)
	}
	db2, err := m.GetPool("tenant-b")
	if err != nil {
		t.Fatal(err)
	}
	if db1 != db2 {
		t.Fatal("expected the same *sql.DB across repeated GetPool calls")
	}
	if m.TenantCount() != 1 {
		t.Fatalf("TenantCount = %d, want 1", m.TenantCount())
	}
}

func TestGetPoolConcurrentFirstCallersGetOnePool(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 5, 5*time.Second)

	const n = 16
	var wg sync.WaitGroup
	results := make([]*sql.DB, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := m.GetPool("tenant-race")
			errs[i] = err
			if err == nil {
				results[i] = db
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	first := results[0]
	for i, r := range results {
		if r != first {
			t.Fatalf("caller %d got a different pool instance", i)
		}
	}
	if m.TenantCount() != 1 {
		t.Fatalf("TenantCount = %d, want 1 (no duplicate pools from racing creators)", m.TenantCount())
	}
}

func TestTenantIsolationSeparateFiles(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 5, 5*time.Second)

	dbA, err := m.GetPool("acme")
	if err != nil {
		t.Fatal(err)
	}
	dbB, err := m.GetPool("globex")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := dbA.Exec("INSERT INTO work_items (id, item_type, project_id, position, title, status, priority, version, created_at, updated_at, created_by, updated_by) VALUES ('p1','project','p1',0,'P','open','normal',0,1,1,'u','u')"); err != nil {
		t.Fatalf("insert into tenant A: %v", err)
	}

	var count int
	if err := dbB.QueryRow("SELECT COUNT(*) FROM work_items").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("tenant B should not see tenant A's rows, got %d", count)
	}
}
