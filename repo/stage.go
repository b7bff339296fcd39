package repo

import (
	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/internal/namegen"
	"github.com/hangar-db/hangar/kv"
	"github.com/hangar-db/hangar/schema"
)

// Stage implements §4.E: the mutable working set of record writes that
// will become the next commit.
type Stage struct {
	env    *Env
	lock   *WriterLock
	names  map[string]*namegen.Generator // dataset -> positional name generator
	stageA *localfs.Accessor
}

// NewStage opens the staging area's own payload accessor (over the
// process stage data directory, per §4.E) against env and wraps its
// writer lock.
func NewStage(env *Env, lock *WriterLock) (*Stage, error) {
	acc := localfs.New()
	if err := acc.Open(env.StageDataDir(), true); err != nil {
		return nil, err
	}
	return &Stage{env: env, lock: lock, names: make(map[string]*namegen.Generator), stageA: acc}, nil
}

func (s *Stage) requireToken(token string) error {
	return s.lock.ValidateToken(token)
}

// DeclareSchema records dataset's schema. Redeclaring an existing
// dataset's schema fails with herrors.AlreadyExists (§4.E).
func (s *Stage) DeclareSchema(token, dataset string, spec schema.Spec) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	blob, err := spec.Marshal()
	if err != nil {
		return err
	}
	return s.env.Registry.WithWriter(s.env.StageRef, func(t *kv.Txn) error {
		key := codec.EncodeSchemaKey(dataset)
		if _, ok := t.Get(key); ok {
			return herrors.AlreadyExists.New("schema for dataset %q", dataset)
		}
		if err := t.Put(key, blob); err != nil {
			return err
		}
		if err := t.Put(codec.EncodeDatasetCountKey(dataset), codec.EncodeCount(0)); err != nil {
			return err
		}
		total := 0
		if v, ok := t.Get(codec.TotalDatasetCountKey()); ok {
			total, _ = codec.DecodeCount(v)
		}
		return t.Put(codec.TotalDatasetCountKey(), codec.EncodeCount(total+1))
	})
}

// schemaOf reads back a dataset's declared schema from the stage, failing
// with herrors.NotFound if none was declared (I2).
func (s *Stage) schemaOf(dataset string) (schema.Spec, error) {
	var spec schema.Spec
	err := s.env.Registry.WithReader(s.env.StageRef, func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeSchemaKey(dataset))
		if !ok {
			return herrors.NotFound.New("schema for dataset %q", dataset)
		}
		parsed, err := schema.Unmarshal(v)
		spec = parsed
		return err
	})
	return spec, err
}

// PutSample writes tensor under (dataset, name) and returns the digest it
// was stored under. If the dataset's schema has schema_is_named = false,
// name is ignored and a generated positional name is used instead (§3).
func (s *Stage) PutSample(token, dataset, name string, t backend.Tensor) (string, hash.Hash, error) {
	if err := s.requireToken(token); err != nil {
		return "", hash.Empty, err
	}
	sc, err := s.schemaOf(dataset)
	if err != nil {
		return "", hash.Empty, err
	}
	if !sc.IsNamed {
		gen, ok := s.names[dataset]
		if !ok {
			gen = namegen.New()
			s.names[dataset] = gen
		}
		name = gen.Next()
	}

	specBlob, err := s.stageA.WriteData(t)
	if err != nil {
		return "", hash.Empty, err
	}
	digest := backend.DigestOf(t)

	err = s.env.Registry.WithWriter(s.env.StageRef, func(txn *kv.Txn) error {
		if err := txn.Put(codec.EncodeDataKey(dataset, name), codec.EncodeDataValue(digest.String())); err != nil {
			return err
		}
		count := 0
		if v, ok := txn.Get(codec.EncodeDatasetCountKey(dataset)); ok {
			count, _ = codec.DecodeCount(v)
		}
		return txn.Put(codec.EncodeDatasetCountKey(dataset), codec.EncodeCount(count+1))
	})
	if err != nil {
		return "", hash.Empty, err
	}

	err = s.env.Registry.WithWriter(s.env.StageHash, func(txn *kv.Txn) error {
		return txn.Put(codec.EncodeHashKey(digest.String()), specBlob)
	})
	return name, digest, err
}

// DeleteSample removes (dataset, name) from the staging area.
func (s *Stage) DeleteSample(token, dataset, name string) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	return s.env.Registry.WithWriter(s.env.StageRef, func(t *kv.Txn) error {
		key := codec.EncodeDataKey(dataset, name)
		if _, ok := t.Get(key); !ok {
			return herrors.NotFound.New("sample %s/%s", dataset, name)
		}
		if err := t.Delete(key); err != nil {
			return err
		}
		count := 0
		if v, ok := t.Get(codec.EncodeDatasetCountKey(dataset)); ok {
			count, _ = codec.DecodeCount(v)
		}
		if count > 0 {
			count--
		}
		return t.Put(codec.EncodeDatasetCountKey(dataset), codec.EncodeCount(count))
	})
}

// PutMetadata stores name -> bytes, content-addressed by digest. Unlike
// samples, metadata bytes are small enough to skip the backend/payload-
// file dance entirely: the value is written straight to the permanent
// label store (meta.lmdb) as a single atomic KV put, content-addressed so
// writing the same bytes twice under the same digest is a safe no-op (§3
// Metadata record, mirroring original_source's hash_meta_* handling of
// raw bytes). Only the "l:" name->digest reference goes through the
// staging area, so the commit engine's payload move never has to touch
// metadata at all.
func (s *Stage) PutMetadata(token, name string, value []byte) (hash.Hash, error) {
	if err := s.requireToken(token); err != nil {
		return hash.Empty, err
	}
	digest := hash.Of(value)
	err := s.env.Registry.WithWriter(s.env.StageRef, func(t *kv.Txn) error {
		key := codec.EncodeMetaKey(name)
		isNew := true
		if _, ok := t.Get(key); ok {
			isNew = false
		}
		if err := t.Put(key, codec.EncodeMetaValue(digest.String())); err != nil {
			return err
		}
		if isNew {
			total := 0
			if v, ok := t.Get(codec.TotalMetaCountKey()); ok {
				total, _ = codec.DecodeCount(v)
			}
			if err := t.Put(codec.TotalMetaCountKey(), codec.EncodeCount(total+1)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return digest, err
	}
	err = s.env.Registry.WithWriter(s.env.Label, func(t *kv.Txn) error {
		key := codec.EncodeHashKey(digest.String())
		if _, ok := t.Get(key); ok {
			return nil
		}
		return t.Put(key, value)
	})
	return digest, err
}

// DeleteMetadata removes a metadata record.
func (s *Stage) DeleteMetadata(token, name string) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	return s.env.Registry.WithWriter(s.env.StageRef, func(t *kv.Txn) error {
		key := codec.EncodeMetaKey(name)
		if _, ok := t.Get(key); !ok {
			return herrors.NotFound.New("metadata %q", name)
		}
		if err := t.Delete(key); err != nil {
			return err
		}
		total := 0
		if v, ok := t.Get(codec.TotalMetaCountKey()); ok {
			total, _ = codec.DecodeCount(v)
		}
		if total > 0 {
			total--
		}
		return t.Put(codec.TotalMetaCountKey(), codec.EncodeCount(total))
	})
}

// Reset wipes stage-ref and stage-hash and empties the process data
// directory (§4.E reset_staging_area).
func (s *Stage) Reset(token string) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	if err := s.env.Registry.WithWriter(s.env.StageRef, func(t *kv.Txn) error {
		for _, p := range t.All() {
			if err := t.Delete(p.Key); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := s.env.Registry.WithWriter(s.env.StageHash, func(t *kv.Txn) error {
		for _, p := range t.All() {
			if err := t.Delete(p.Key); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	s.names = make(map[string]*namegen.Generator)
	return clearDir(s.env.StageDataDir())
}
