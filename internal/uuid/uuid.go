// uuid generators for handler keys and delay names that allow deterministic tests
package uuid

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator is an interface for generating unique ids
type Generator interface {
	New() string
}

// GoogleUUIDGenerator implements the Generator interface using Google's UUID package
type GoogleUUIDGenerator struct{}

// New generates a new UUID string
func (g *GoogleUUIDGenerator) New() string {
	return uuid.New().String()
}

// NewGoogleUUIDGenerator creates a new GoogleUUIDGenerator
func NewGoogleUUIDGenerator() *GoogleUUIDGenerator {
	return &GoogleUUIDGenerator{}
}

// SequentialGenerator hands out prefixed, monotonically increasing ids.
// Useful in tests where keys should be predictable.
type SequentialGenerator struct {
	prefix string
	next   atomic.Uint64
}

// NewSequentialGenerator creates a SequentialGenerator
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// New returns the next id
func (g *SequentialGenerator) New() string {
	return g.prefix + strconv.FormatUint(g.next.Add(1), 10)
}
