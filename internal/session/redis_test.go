package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"

	"github.com/psycheos/screening-engine/internal/cipher"
)

// #region helpers
func openRedis(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

// #endregion helpers

// #region lifecycle
func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := openRedis(t)

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	rec := stepRecord(t, "s1", 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Seq() != 1 || len(loaded.Snapshot.History) != 1 {
		t.Fatalf("snapshot mismatch: seq=%d history=%d", loaded.Seq(), len(loaded.Snapshot.History))
	}

	stale := stepRecord(t, "s1", 0)
	if err := store.Save(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("expected [s1], got %v", ids)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	ids, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

// #endregion lifecycle

// #region expiry
func TestRedisStoreKeyExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := openRedis(t, WithTTL(time.Minute))

	rec := stepRecord(t, "s1", 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); err != nil {
		t.Fatalf("load before expiry: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after TTL, got %v", err)
	}
}

func TestRedisStoreListPrunesExpiredIndex(t *testing.T) {
	ctx := context.Background()
	store, _ := openRedis(t)

	rec := stepRecord(t, "live", 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	// An index entry whose expiry score is long past gets pruned lazily.
	err := store.client.ZAdd(ctx, store.indexKey(), backend.Z{
		Score:  1,
		Member: "dead",
	}).Err()
	if err != nil {
		t.Fatalf("seed dead entry: %v", err)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "live" {
		t.Fatalf("expected [live], got %v", ids)
	}
}

// #endregion expiry

// #region prefix
func TestRedisStorePrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := openRedis(t, WithPrefix("custom:"))

	rec := stepRecord(t, "s1", 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("custom:s1") {
		t.Fatal("expected key under the custom prefix")
	}
	if mr.Exists("screening:session:s1") {
		t.Fatal("default prefix must not be used")
	}
}

// #endregion prefix

// #region cipher
func TestRedisStoreSealsAtRest(t *testing.T) {
	ctx := context.Background()
	c, err := cipher.New("store-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	store, mr := openRedis(t, WithCipher(c))

	rec := stepRecord(t, "s1", 1)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := mr.Get(store.key("s1"))
	if err != nil {
		t.Fatalf("read raw value: %v", err)
	}
	if strings.Contains(raw, "session_id") || strings.HasPrefix(raw, "{") {
		t.Fatal("stored payload is readable JSON, expected it sealed")
	}

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Seq() != 1 {
		t.Fatalf("expected seq 1 after round trip, got %d", loaded.Seq())
	}
}

func TestRedisStoreLoadsRecordsWrittenBeforeSealing(t *testing.T) {
	ctx := context.Background()

	// Write plaintext with a cipher-less store, then reopen with one.
	plain, mr := openRedis(t)
	rec := stepRecord(t, "s1", 1)
	if err := plain.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	c, err := cipher.New("store-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	sealed := NewRedisStoreFromClient(client, WithCipher(c))
	t.Cleanup(func() { sealed.Close() })

	loaded, err := sealed.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load legacy record: %v", err)
	}
	if loaded.Seq() != 1 {
		t.Fatalf("expected seq 1, got %d", loaded.Seq())
	}
}

// #endregion cipher
