// Package id provides ULID generation for diagnostic identities.
//
// Guest descriptor numbers stay numeric (the guest ABI dictates them); ULIDs
// tag the things only the emulator sees, like pair and trace identities in
// logs and trace dumps. Prefixes keep them readable (pair_*, trace_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PairID identifies one socketpair instance across both endpoints.
type PairID string

// TraceID identifies one recorded trace session.
type TraceID string

const (
	PairPrefix  = "pair"
	TracePrefix = "trace"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewPairID generates a new socketpair identity.
func NewPairID() PairID {
	return PairID(Default().GenerateWithPrefix(PairPrefix))
}

// NewTraceID generates a new trace-session identity.
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

func (id PairID) String() string  { return string(id) }
func (id TraceID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
