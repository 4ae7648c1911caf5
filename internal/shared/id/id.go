// Package id provides centralized ID generation for the backend.
//
// Session identifiers are prefixed ULIDs drawn from a monotonic entropy
// source, so two identifiers minted in the same millisecond still sort and
// never collide within a process lifetime:
//   - Sessions:    sess_<ULID>
//   - Connections: conn_<UUID> (log correlation only, never on the wire)
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SessionID identifies a terminal session
type SessionID string

// ConnID identifies a client connection
type ConnID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	SessionPrefix = "sess"
	ConnPrefix    = "conn"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic, cryptographically seeded entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewConnID generates a new connection ID
func NewConnID() ConnID {
	return ConnID(ConnPrefix + "_" + uuid.NewString())
}

func (id SessionID) String() string { return string(id) }
func (id ConnID) String() string    { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsSessionID reports whether s has the shape of a session identifier.
func IsSessionID(s string) bool {
	ulidPart, ok := strings.CutPrefix(s, SessionPrefix+"_")
	return ok && IsValid(ulidPart)
}
