package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// CommitSpec is the (time, message, user, email) tuple recorded at
// digest:spec (spec.md §3). The JSON encoding is compressed by the caller
// with compress.Compress before being written to the ref store.
type CommitSpec struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
	User    string `json:"user"`
	Email   string `json:"email"`
}

// MarshalCommitSpec encodes a CommitSpec as ASCII-safe JSON.
func MarshalCommitSpec(s CommitSpec) ([]byte, error) {
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

// UnmarshalCommitSpec parses a CommitSpec from its JSON encoding.
func UnmarshalCommitSpec(b []byte) (CommitSpec, error) {
	var s CommitSpec
	err := json.Unmarshal(b, &s)
	return s, err
}
