// Package boltcache implements cache.Cache as a persistent single-file store on bbolt.
package boltcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"reflect"
	"time"

	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/codec"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/types"
	bolt "go.etcd.io/bbolt"
)

const (
	defaultBucket = "memo-cache"
	headerSize    = 8
)

type Options struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// Codec defaults to canonical JSON.
	Codec codec.Codec
	// KeyFunc defaults to keyfunc.Structural.
	KeyFunc keyfunc.Func
	// Engine supplies the clock used for expiry, metrics and logger.
	Engine *engine.CacheEngine
}

// Store keeps envelopes in a Bolt bucket. It is safe for concurrent use by multiple
// goroutines and survives process restarts.
type Store struct {
	db      *bolt.DB
	bucket  []byte
	codec   codec.Codec
	keyFunc keyfunc.Func
	engine  *engine.CacheEngine
}

var _ cache.Cache = (*Store)(nil)

// Open initializes or opens a Store at the given path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bolt cache: empty path", types.ErrConfiguration)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: bolt cache: open %s: %w", types.ErrConfiguration, path, err)
	}
	s := &Store{
		db:      db,
		bucket:  []byte(defaultBucket),
		codec:   opts.Codec,
		keyFunc: opts.KeyFunc,
		engine:  opts.Engine,
	}
	if opts.Bucket != "" {
		s.bucket = []byte(opts.Bucket)
	}
	if s.codec == nil {
		s.codec = codec.Default()
	}
	if s.keyFunc == nil {
		s.keyFunc = keyfunc.Structural{}
	}
	if s.engine == nil {
		s.engine = engine.Default()
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: bolt cache: create bucket: %w", types.ErrConfiguration, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// KeyFunc implements Cache.KeyFunc.
func (s *Store) KeyFunc() keyfunc.Func {
	return s.keyFunc
}

func (s *Store) encodeKey(key cache.Key) ([]byte, error) {
	if err := engine.ValidateKey(key); err != nil {
		return nil, err
	}
	return s.codec.EncodeKey(key)
}

// Layout: 8 bytes big endian expiry (unix nanos, 0 = never) || encoded envelope
func (s *Store) encodeValue(value any, ttl time.Duration) ([]byte, error) {
	env := s.engine.NewEnvelope(value, ttl)
	payload, err := s.codec.EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.engine.Now().Add(ttl).UnixNano()
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint64(buf[:headerSize], uint64(expiresAt))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// expired reports whether the stored value v is past its expiry at now. A value too
// short to carry the expiry header was not written by this store.
func (s *Store) expired(v []byte, now time.Time) (bool, error) {
	if len(v) < headerSize {
		return false, fmt.Errorf("%w: bolt: corrupt entry of %d bytes", types.ErrSerialization, len(v))
	}
	expiresAt := int64(binary.BigEndian.Uint64(v[:headerSize]))
	return expiresAt > 0 && !now.Before(time.Unix(0, expiresAt)), nil
}

// Set implements Cache.Set.
func (s *Store) Set(_ context.Context, key cache.Key, value any, ttl time.Duration) error {
	if err := engine.ValidateTTL(ttl); err != nil {
		return err
	}
	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	v, err := s.encodeValue(value, ttl)
	if err != nil {
		return err
	}
	return s.put(entry{k, v})
}

type entry struct{ k, v []byte }

func (s *Store) put(entries ...entry) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, e := range entries {
			if err := b.Put(e.k, e.v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return backendErr("put", err)
	}
	return nil
}

// SetMany implements Cache.SetMany. All entries are written in one transaction.
func (s *Store) SetMany(_ context.Context, entries map[cache.Key]any, ttl time.Duration) error {
	if err := engine.ValidateTTL(ttl); err != nil {
		return err
	}
	encoded := make([]entry, 0, len(entries))
	for key, value := range entries {
		k, err := s.encodeKey(key)
		if err != nil {
			return err
		}
		v, err := s.encodeValue(value, ttl)
		if err != nil {
			return err
		}
		encoded = append(encoded, entry{k, v})
	}
	if len(encoded) == 0 {
		return nil
	}
	return s.put(encoded...)
}

// Exists implements Cache.Exists.
func (s *Store) Exists(ctx context.Context, key cache.Key) (bool, error) {
	k, err := s.encodeKey(key)
	if err != nil {
		return false, err
	}
	raw, err := s.read(k)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

/*
read returns the stored envelope bytes for k, or nil when absent or expired.
An expired entry is deleted before read returns.
*/
func (s *Store) read(k []byte) ([]byte, error) {
	var (
		out     []byte
		expired bool
		corrupt error
	)
	now := s.engine.Now()
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(k)
		if v == nil {
			return nil
		}
		expired, corrupt = s.expired(v, now)
		if corrupt != nil || expired {
			return nil
		}
		out = append([]byte(nil), v[headerSize:]...)
		return nil
	}); err != nil {
		return nil, backendErr("view", err)
	}
	if corrupt != nil {
		return nil, corrupt
	}
	if expired {
		if err := s.purge([][]byte{k}, now); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// purge deletes the given keys if they are still expired at now. A concurrent
// rewrite between the read and the purge is left alone.
func (s *Store) purge(keys [][]byte, now time.Time) error {
	var purged [][]byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, k := range keys {
			v := b.Get(k)
			if v == nil {
				continue
			}
			if expired, err := s.expired(v, now); err != nil || !expired {
				continue
			}
			if err := b.Delete(k); err != nil {
				return err
			}
			purged = append(purged, k)
		}
		return nil
	})
	if err != nil {
		return backendErr("purge", err)
	}
	for _, k := range purged {
		s.engine.OnExpire(string(k))
	}
	return nil
}

// Get implements Cache.Get.
func (s *Store) Get(ctx context.Context, key cache.Key, castTo reflect.Type) (cache.Result, error) {
	if err := engine.ValidateCastType(castTo); err != nil {
		return cache.Miss, err
	}
	k, err := s.encodeKey(key)
	if err != nil {
		return cache.Miss, err
	}
	raw, err := s.read(k)
	if err != nil {
		return cache.Miss, err
	}
	if raw == nil {
		s.engine.OnLookup(false)
		return cache.Miss, nil
	}
	env, err := s.codec.DecodeEnvelope(raw, castTo)
	if err != nil {
		return cache.Miss, err
	}
	s.engine.OnLookup(true)
	return cache.Result{Envelope: env, Found: true}, nil
}

// GetMany implements Cache.GetMany: one read transaction, then at most one write
// transaction to drop the expired entries it met.
func (s *Store) GetMany(_ context.Context, keys map[cache.Key]reflect.Type) (map[cache.Key]cache.Result, error) {
	out := make(map[cache.Key]cache.Result, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	encoded := make(map[cache.Key][]byte, len(keys))
	for key, castTo := range keys {
		if err := engine.ValidateCastType(castTo); err != nil {
			return nil, err
		}
		k, err := s.encodeKey(key)
		if err != nil {
			return nil, err
		}
		encoded[key] = k
	}

	var (
		raws    = make(map[cache.Key][]byte, len(keys))
		expired [][]byte
		corrupt error
	)
	now := s.engine.Now()
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for key, k := range encoded {
			v := b.Get(k)
			if v == nil {
				continue
			}
			isExpired, err := s.expired(v, now)
			if err != nil {
				corrupt = err
				return nil
			}
			if isExpired {
				expired = append(expired, k)
				continue
			}
			raws[key] = append([]byte(nil), v[headerSize:]...)
		}
		return nil
	}); err != nil {
		return nil, backendErr("view", err)
	}
	if corrupt != nil {
		return nil, corrupt
	}
	if len(expired) > 0 {
		if err := s.purge(expired, now); err != nil {
			return nil, err
		}
	}

	for key, castTo := range keys {
		raw, ok := raws[key]
		if !ok {
			s.engine.OnLookup(false)
			out[key] = cache.Miss
			continue
		}
		env, err := s.codec.DecodeEnvelope(raw, castTo)
		if err != nil {
			return nil, err
		}
		s.engine.OnLookup(true)
		out[key] = cache.Result{Envelope: env, Found: true}
	}
	return out, nil
}

// Invalidate implements Cache.Invalidate.
func (s *Store) Invalidate(_ context.Context, key cache.Key) error {
	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(k)
	}); err != nil {
		return backendErr("delete", err)
	}
	s.engine.Metrics.Invalidate()
	return nil
}

// InvalidateAll drops and recreates the bucket. Other buckets in the file are untouched.
func (s *Store) InvalidateAll(_ context.Context) error {
	s.engine.Logger.WithField("bucket", string(s.bucket)).Warn("cache: dropping bolt bucket")
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	}); err != nil {
		return backendErr("reset bucket", err)
	}
	s.engine.Metrics.Invalidate()
	return nil
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: bolt %s: %w", types.ErrBackend, op, err)
}
