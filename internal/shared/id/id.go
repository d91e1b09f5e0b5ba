// Package id provides centralized ID generation for the renderer host.
//
// These are process-internal identifiers (connections, pages, in-flight
// navigation requests), distinct from the controller-visible DocumentID,
// which is a correlated monotonic counter owned by internal/correlate.
//
// ULIDs are used for their lexicographic sortability: a page's request ids
// sort by issue time, which makes interleaved channel logs readable.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PageID identifies a page (one controller channel connection).
type PageID string

// RequestID identifies an in-flight navigation request on a frame.
type RequestID string

// ConnectionID identifies a control channel connection.
type ConnectionID string

const (
	pagePrefix       = "page"
	requestPrefix    = "req"
	connectionPrefix = "conn"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator over the given entropy source.
// Tests pass a deterministic reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewPageID generates a new page ID.
func NewPageID() PageID {
	return PageID(Default().GenerateWithPrefix(pagePrefix))
}

// NewRequestID generates a new navigation request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(requestPrefix))
}

// NewConnectionID generates a new channel connection ID.
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(connectionPrefix))
}

func (id PageID) String() string       { return string(id) }
func (id RequestID) String() string    { return string(id) }
func (id ConnectionID) String() string { return string(id) }
