package session

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/psycheos/screening-engine/internal/cipher"
)

// #endregion

// #region options
// Option configures a RedisStore.
type Option func(*RedisStore)

// WithTTL sets the storage-level expiration for session keys.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for session keys.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithCipher seals record payloads at rest. Records written before
// sealing was enabled still load.
func WithCipher(c *cipher.Cipher) Option {
	return func(s *RedisStore) {
		s.cipher = c
	}
}

// #endregion options

// #region redis-store
// RedisStore keeps records as JSON values under a key prefix, with a
// ZSET index scored by expiry for listing.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	cipher *cipher.Cipher
}

// NewRedisStore connects to Redis and applies options.
func NewRedisStore(address, password string, db int, opts ...Option) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...Option) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "screening:session:",
		ttl:    0,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// #endregion redis-store

// #region save
// Save writes the record and indexes it in one pipeline. A stale
// sequence fails with ErrVersionConflict before anything is written.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Snapshot == nil {
		return errors.New("save: nil record")
	}
	if prev, err := s.Load(ctx, rec.ID); err == nil && rec.Seq() < prev.Seq() {
		return fmt.Errorf("session %s at seq %d behind active %d: %w",
			rec.ID, rec.Seq(), prev.Seq(), ErrVersionConflict)
	} else if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	payload := string(data)
	if s.cipher != nil {
		payload, err = s.cipher.Seal(data)
		if err != nil {
			return fmt.Errorf("seal record: %w", err)
		}
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(rec.ID), payload, s.ttl)

	// Index score is the expiry instant; no TTL pins it far out so the
	// lazy prune in List never touches it.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: rec.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// #endregion save

// #region load
// Load retrieves and decodes the record. Sealed payloads are opened
// first; a bare JSON payload predates the cipher and passes through.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data := []byte(val)
	if s.cipher != nil && !strings.HasPrefix(val, "{") {
		data, err = s.cipher.Open(val)
		if err != nil {
			return nil, fmt.Errorf("open record %s: %w", sessionID, err)
		}
	}
	return DecodeRecord(data)
}

// #endregion load

// #region delete
// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// #endregion delete

// #region list
// List prunes expired index entries, then returns the survivors.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("prune index: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// #endregion list

// #region close
// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// #endregion close
