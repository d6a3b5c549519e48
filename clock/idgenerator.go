package clock

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	// Generate an ID.
	Generate() string
}

var (
	idGeneratorMu sync.Mutex
	idGenerator   IDGenerator
)

// UseSequentialIDGenerator configures the ID generator to generate IDs
// sequentially, which keeps traces and tests deterministic.
func UseSequentialIDGenerator() {
	idGeneratorMu.Lock()
	idGenerator = &sequentialIDGenerator{}
	idGeneratorMu.Unlock()
}

// GetIDGenerator returns the ID generator in use. The default generator is
// xid-based and safe for concurrent use.
func GetIDGenerator() IDGenerator {
	idGeneratorMu.Lock()
	defer idGeneratorMu.Unlock()

	if idGenerator == nil {
		idGenerator = xidGenerator{}
	}

	return idGenerator
}

type xidGenerator struct{}

func (g xidGenerator) Generate() string {
	return xid.New().String()
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	id := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(id, 10)
}
