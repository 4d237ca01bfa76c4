// Package id provides centralized ID generation for the script host.
//
// All identifiers are ULIDs with a type prefix:
//   - ctx_*: execution contexts, also the evaluation identifier
//   - req_*: correlation ids of structured requests
//
// ULIDs sort by creation time, so listings of contexts come out in spawn
// order without a separate timestamp.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ContextID identifies an execution context
type ContextID string

// RequestID identifies one request/response exchange
type RequestID string

const (
	ContextPrefix = "ctx"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
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

// NewGenerator creates a generator backed by a monotonic reader over
// crypto/rand, so ids minted within one millisecond still sort.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewContextID generates a new execution context ID
func NewContextID() ContextID {
	return ContextID(Default().GenerateWithPrefix(ContextPrefix))
}

// NewRequestID generates a new correlation ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ContextID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// Valid reports whether the id carries the context prefix and a ULID.
func (id ContextID) Valid() bool {
	return hasPrefixedULID(string(id), ContextPrefix)
}

// Valid reports whether the id carries the request prefix and a ULID.
func (id RequestID) Valid() bool {
	return hasPrefixedULID(string(id), RequestPrefix)
}

// Timestamp extracts the creation time of a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	if i := strings.IndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

func hasPrefixedULID(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}
