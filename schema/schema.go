// Package schema defines the dataset schema spec (spec.md §3 "Schema
// spec") that every dataset declares once before any sample is written.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hangar-db/hangar/hash"
)

// DType is the numeric type code of a dataset's samples.
type DType int

// The closed set of supported tensor element types. Values are stable
// on-disk constants, not iota-renumberable.
const (
	DTypeUint8   DType = 0
	DTypeInt8    DType = 1
	DTypeUint16  DType = 2
	DTypeInt16   DType = 3
	DTypeUint32  DType = 4
	DTypeInt32   DType = 5
	DTypeUint64  DType = 6
	DTypeInt64   DType = 7
	DTypeFloat32 DType = 8
	DTypeFloat64 DType = 9
)

// Spec is the declared schema of a dataset.
type Spec struct {
	UUID            string `json:"schema_uuid"`
	Hash            string `json:"schema_hash"`
	DType           DType  `json:"schema_dtype"`
	IsVar           bool   `json:"schema_is_var"`
	MaxShape        []int  `json:"schema_max_shape"`
	IsNamed         bool   `json:"schema_is_named"`
	DefaultBackend  string `json:"schema_default_backend"`
}

// New builds a Spec, generating a fresh schema_uuid and computing
// schema_hash from the rest of the fields so it is stable for identical
// declarations.
func New(dtype DType, maxShape []int, isVar, isNamed bool, defaultBackend string) Spec {
	s := Spec{
		UUID:           uuid.NewString(),
		DType:          dtype,
		IsVar:          isVar,
		MaxShape:       append([]int(nil), maxShape...),
		IsNamed:        isNamed,
		DefaultBackend: defaultBackend,
	}
	s.Hash = s.computeHash()
	return s
}

// computeHash derives a stable digest of the schema's shape-defining
// fields (excluding the random UUID), so two Specs with identical
// dtype/shape/named-ness/backend compare equal by hash even if declared
// independently.
func (s Spec) computeHash() string {
	type stable struct {
		DType          DType  `json:"schema_dtype"`
		IsVar          bool   `json:"schema_is_var"`
		MaxShape       []int  `json:"schema_max_shape"`
		IsNamed        bool   `json:"schema_is_named"`
		DefaultBackend string `json:"schema_default_backend"`
	}
	b, _ := json.Marshal(stable{s.DType, s.IsVar, s.MaxShape, s.IsNamed, s.DefaultBackend})
	return hash.Of(b).String()
}

// Marshal serializes the spec as ASCII-safe JSON, the record value shape
// spec.md §3 requires for "s:" + dataset-name records.
func (s Spec) Marshal() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for _, r := range string(b) {
		if r < utf8.RuneSelf {
			out.WriteByte(byte(r))
			continue
		}
		for _, u := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&out, `\u%04x`, u)
		}
	}
	return out.Bytes(), nil
}

// Unmarshal parses a Spec from its JSON encoding.
func Unmarshal(b []byte) (Spec, error) {
	var s Spec
	err := json.Unmarshal(b, &s)
	return s, err
}
