package kv

import "errors"

// ErrWriterBusy is returned by Registry.WithWriter when another writer
// transaction against the same store is already in flight in this process.
var ErrWriterBusy = errors.New("kv: writer transaction already in flight for this store")
