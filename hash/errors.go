package hash

import "errors"

// ErrBadLength is returned by Parse when the decoded bytes are not exactly
// ByteLen long.
var ErrBadLength = errors.New("hash: decoded digest has the wrong length")
