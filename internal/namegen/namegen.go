// Package namegen generates positional sample names when a dataset's
// schema has schema_is_named = false (spec.md §3 "Sample").
//
// §9 open question 1 flags the original wall-clock+counter scheme as
// collision-prone across processes within the same millisecond. Per the
// recommendation there, this generator adds a per-process random seed
// (google/uuid v4) into the mix instead of preserving the literal scheme,
// so a collision additionally requires two processes to draw the same
// uuid seed.
package namegen

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator produces sortable, process-unique sample names.
type Generator struct {
	seed    string
	counter uint64
}

// New creates a Generator with a fresh random seed.
func New() *Generator {
	return &Generator{seed: uuid.NewString()[:8]}
}

// Next returns the next name: seed, nanosecond timestamp, cycling counter.
// The timestamp dominates the sort order within a process; the counter
// breaks ties when Next is called faster than the clock's resolution.
func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%020d-%06d", g.seed, time.Now().UnixNano(), n%1_000_000)
}
