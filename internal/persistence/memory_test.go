package persistence

import (
	"errors"
	"fmt"
	"testing"
)

func TestMemoryEngineBasicOps(t *testing.T) {
	engine := NewMemoryEngine()

	if _, err := engine.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	if err := engine.Set("k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := engine.Get("k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected v, got %s", value)
	}

	if err := engine.Delete("k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := engine.Get("k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestMemoryEngineScanIsOrdered(t *testing.T) {
	engine := NewMemoryEngine()

	// Insert out of order; Scan must return ascending key order.
	for _, i := range []int{3, 1, 4, 2} {
		key := fmt.Sprintf("ev:acme:%016x", i)
		if err := engine.Set(key, []byte{byte(i)}); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if err := engine.Set("ev:globex:0000000000000001", []byte{9}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	entries, err := engine.Scan("ev:acme:")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Value[0] != byte(i+1) {
			t.Errorf("scan out of order at %d: %v", i, entry)
		}
	}
}

func TestMemoryEngineSequences(t *testing.T) {
	engine := NewMemoryEngine()

	for want := uint64(1); want <= 3; want++ {
		got, err := engine.NextSequence("evidence:acme")
		if err != nil {
			t.Fatalf("sequence failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	// Sequences are independent per name.
	got, err := engine.NextSequence("evidence:globex")
	if err != nil {
		t.Fatalf("sequence failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected fresh sequence to start at 1, got %d", got)
	}
}

func TestMemoryEngineCopiesValues(t *testing.T) {
	engine := NewMemoryEngine()

	original := []byte("value")
	if err := engine.Set("k", original); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	original[0] = 'X'

	stored, err := engine.Get("k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(stored) != "value" {
		t.Errorf("engine must store a copy, got %s", stored)
	}

	stored[0] = 'Y'
	again, _ := engine.Get("k")
	if string(again) != "value" {
		t.Errorf("engine must return a copy, got %s", again)
	}
}
