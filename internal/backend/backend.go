// Package backend implements the pluggable tensor storage layer spec.md
// §1/§4.D/§9 calls out as an external collaborator: a closed, tag-keyed
// registry of accessors, each able to read/write tensor bytes given an
// opaque "backend spec" blob. Only a local-filesystem backend ships here;
// §1 treats the real on-disk tensor engine as integration glue outside
// this spec's core, and SPEC_FULL.md documents why the cloud-storage
// backends in the teacher's dependency stack aren't wired (no deployment
// target exercises them in this repo).
package backend

import "github.com/hangar-db/hangar/hash"

// Tensor is the in-memory representation of one sample's payload.
type Tensor struct {
	Shape []int
	DType int
	Data  []byte
}

// Accessor is the capability a backend tag resolves to: open, read, write.
// Mirrors dolt's dbfactory closed-registry pattern (§9 design notes).
type Accessor interface {
	// Open prepares the backend to operate against the directory dir, in
	// either read-only or read-write mode.
	Open(dir string, writable bool) error

	// Close releases any resources Open acquired.
	Close() error

	// ReadData resolves an opaque backend spec to tensor bytes.
	ReadData(spec []byte) (Tensor, error)

	// WriteData persists a tensor and returns the opaque spec blob that
	// ReadData can later resolve. The content store is responsible for
	// content-addressing and only invokes WriteData for digests not
	// already recorded; the staging area calls it for every staged sample.
	WriteData(t Tensor) (spec []byte, err error)
}

// Tag is the short identifier recorded as schema_default_backend and used
// to select an Accessor from the Registry.
type Tag string

// Registry is the closed enumeration of backend tags this build supports.
type Registry struct {
	accessors map[Tag]Accessor
}

// NewRegistry builds an empty registry; callers Register accessors into it
// at startup (§9: "register at build time").
func NewRegistry() *Registry {
	return &Registry{accessors: make(map[Tag]Accessor)}
}

// Register adds an accessor under tag, overwriting any previous one.
func (r *Registry) Register(tag Tag, a Accessor) {
	r.accessors[tag] = a
}

// Get resolves tag to its Accessor, or (nil, false) if unregistered.
func (r *Registry) Get(tag Tag) (Accessor, bool) {
	a, ok := r.accessors[tag]
	return a, ok
}

// DigestOf computes the content digest of a tensor's raw bytes, the value
// compared on write (content-addressing, §4.D) and on receive
// (DigestMismatch check, §4.D/§4.J).
func DigestOf(t Tensor) hash.Hash {
	return hash.Of(t.Data)
}
