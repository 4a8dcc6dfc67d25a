package logging

import "testing"

func TestInitializeJSON(t *testing.T) {
	if err := Initialize(true); err != nil {
		t.Fatalf("Initialize(true): %v", err)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after Initialize")
	}
}

func TestInitializeConsole(t *testing.T) {
	if err := Initialize(false); err != nil {
		t.Fatalf("Initialize(false): %v", err)
	}
	Named("test").Infow("hello", "k", "v")
}

func TestForConn(t *testing.T) {
	l := ForConn("conn-1", "tenant-1")
	if l == nil {
		t.Fatal("ForConn returned nil")
	}
}
