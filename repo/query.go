package repo

import (
	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/internal/keys"
	"github.com/hangar-db/hangar/kv"
	"github.com/hangar-db/hangar/schema"
)

// Query implements §4.I's read-only record queries against either an
// unpacked commit store or the stage-ref store directly — both are plain
// *kv.Store values holding the same record shapes, so one implementation
// serves both cases.
type Query struct {
	store *kv.Store
}

// NewQuery wraps the ref store a query should read from.
func NewQuery(store *kv.Store) *Query {
	return &Query{store: store}
}

// Datasets lists every dataset with a declared schema.
func (q *Query) Datasets() ([]string, error) {
	var names []string
	err := q.store.View(func(t *kv.Txn) error {
		for _, p := range t.Range([]byte(keys.Dataset)) {
			name, err := codec.DecodeSchemaKey(p.Key)
			if err != nil {
				continue
			}
			names = append(names, name)
		}
		return nil
	})
	return names, err
}

// SamplesIn lists every sample name recorded under dataset.
func (q *Query) SamplesIn(dataset string) ([]string, error) {
	var names []string
	prefix := []byte(keys.Array + dataset + keys.SepKey)
	err := q.store.View(func(t *kv.Txn) error {
		for _, p := range t.Range(prefix) {
			_, sample, err := codec.DecodeDataKey(p.Key)
			if err != nil {
				continue
			}
			names = append(names, sample)
		}
		return nil
	})
	return names, err
}

// datasetSchemaHashes reads every declared dataset's schema blob and
// returns its schema_hash, keyed by dataset name.
func (q *Query) datasetSchemaHashes(t *kv.Txn) (map[string]string, error) {
	out := make(map[string]string)
	for _, p := range t.Range([]byte(keys.Dataset)) {
		dataset, err := codec.DecodeSchemaKey(p.Key)
		if err != nil {
			continue
		}
		sc, err := schema.Unmarshal(p.Value)
		if err != nil {
			return nil, err
		}
		out[dataset] = sc.Hash
	}
	return out, nil
}

// DataHashToSchemaHash joins every sample record's data digest to the
// schema_hash of the dataset it belongs to (§4.I).
func (q *Query) DataHashToSchemaHash() (map[string]string, error) {
	out := make(map[string]string)
	err := q.store.View(func(t *kv.Txn) error {
		schemaHash, err := q.datasetSchemaHashes(t)
		if err != nil {
			return err
		}
		for _, p := range t.Range([]byte(keys.Array)) {
			dataset, sample, err := codec.DecodeDataKey(p.Key)
			if err != nil || sample == "" {
				continue
			}
			digest := codec.DecodeDataValue(p.Value)
			if sh, ok := schemaHash[dataset]; ok {
				out[digest] = sh
			}
		}
		return nil
	})
	return out, err
}

// MetadataHashes returns the set of digests referenced by metadata
// records.
func (q *Query) MetadataHashes() (map[string]bool, error) {
	out := make(map[string]bool)
	err := q.store.View(func(t *kv.Txn) error {
		for _, p := range t.Range([]byte(keys.Meta)) {
			if _, err := codec.DecodeMetaKey(p.Key); err != nil {
				continue
			}
			out[codec.DecodeMetaValue(p.Value)] = true
		}
		return nil
	})
	return out, err
}

// SchemaHashes returns the set of schema_hash digests recorded across
// every declared dataset.
func (q *Query) SchemaHashes() (map[string]bool, error) {
	out := make(map[string]bool)
	err := q.store.View(func(t *kv.Txn) error {
		schemaHash, err := q.datasetSchemaHashes(t)
		if err != nil {
			return err
		}
		for _, h := range schemaHash {
			out[h] = true
		}
		return nil
	})
	return out, err
}
