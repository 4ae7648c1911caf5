package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestNewSessionID(t *testing.T) {
	sessID := NewSessionID()

	if !strings.HasPrefix(string(sessID), "sess_") {
		t.Errorf("SessionID should start with 'sess_', got: %s", sessID)
	}

	if !IsSessionID(sessID.String()) {
		t.Errorf("SessionID should validate: %s", sessID)
	}
}

func TestNewConnID(t *testing.T) {
	connID := NewConnID()

	if !strings.HasPrefix(string(connID), "conn_") {
		t.Errorf("ConnID should start with 'conn_', got: %s", connID)
	}

	if IsSessionID(connID.String()) {
		t.Errorf("ConnID must not validate as a session ID: %s", connID)
	}
}

func TestIsSessionID(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"", false},
		{"sess_", false},
		{"sess_invalid", false},
		{"app_" + NewGenerator().GenerateString(), false},
		{NewGenerator().GenerateString(), false},
		{"sess_" + NewGenerator().GenerateString(), true},
	}

	for _, tt := range tests {
		if got := IsSessionID(tt.input); got != tt.valid {
			t.Errorf("IsSessionID(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator()

	validID := gen.GenerateString()
	if !IsValid(validID) {
		t.Error("Generated ULID should be valid")
	}

	invalidIDs := []string{
		"",
		"invalid",
		"1234567890",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzz", // Invalid characters
	}

	for _, id := range invalidIDs {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestSameMillisecondIDsAreOrdered(t *testing.T) {
	gen := NewGenerator()

	prev := gen.GenerateString()
	for i := 0; i < 1000; i++ {
		next := gen.GenerateString()
		if next <= prev {
			t.Fatalf("IDs must be strictly increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const goroutines = 100
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan SessionID, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- NewSessionID()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[SessionID]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = true
	}

	if len(seen) != goroutines*idsPerGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestDefaultGenerator(t *testing.T) {
	gen1 := Default()
	gen2 := Default()

	if gen1 != gen2 {
		t.Error("Default() should return the same instance")
	}
}

func BenchmarkNewSessionID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewSessionID()
	}
}
