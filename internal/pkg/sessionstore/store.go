package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shopflux/shopflux/internal/pkg/checkout"
)

const cacheKeyPrefix = "checkout:session:"

// Cache entries outlive the 24h session window slightly so terminal
// sessions stay readable without a durable round trip.
const cacheTTL = checkout.SessionTTL + time.Hour

// Store is the two-tier session store: Redis for speed, MySQL for
// correctness. The cache is written synchronously on every put; the
// durable write is best-effort on the default path and mandatory on
// PutDurable.
type Store struct {
	rdb  *redis.Client
	repo *Repository
}

// New builds a store over a Redis client and a GORM handle.
func New(rdb *redis.Client, db *gorm.DB) *Store {
	return &Store{rdb: rdb, repo: NewRepository(db)}
}

// Get returns the session or (nil, nil) when unknown. A cache miss is
// reconstructed from the durable record and the cache repopulated.
func (s *Store) Get(ctx context.Context, id string) (*checkout.Session, error) {
	raw, err := s.rdb.Get(ctx, cacheKey(id)).Result()
	if err == nil {
		var session checkout.Session
		if uerr := json.Unmarshal([]byte(raw), &session); uerr == nil {
			return &session, nil
		}
		// Corrupt cache entry: fall through to the durable record.
		log.Warnf("dropping undecodable cache entry for session %s", id)
		_ = s.rdb.Del(ctx, cacheKey(id)).Err()
	} else if !errors.Is(err, redis.Nil) {
		log.Warnf("session cache read for %s: %v", id, err)
	}

	session, err := s.repo.Find(ctx, id)
	if err != nil || session == nil {
		return session, err
	}
	if cerr := s.writeCache(ctx, session); cerr != nil {
		log.Warnf("repopulating session cache for %s: %v", id, cerr)
	}
	return session, nil
}

// Put updates the cache synchronously; the durable write is attempted
// synchronously but its failure is logged and swallowed, trading bounded
// staleness for checkout latency.
func (s *Store) Put(ctx context.Context, session *checkout.Session) error {
	if err := s.writeCache(ctx, session); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		log.Errorf("durable session write for %s: %v", session.ID, err)
	}
	return nil
}

// PutDurable makes the durable write the critical path; the cache write
// afterwards only costs a later miss if it fails.
func (s *Store) PutDurable(ctx context.Context, session *checkout.Session) error {
	if err := s.repo.Save(ctx, session); err != nil {
		return err
	}
	if err := s.writeCache(ctx, session); err != nil {
		log.Warnf("cache write after durable put for %s: %v", session.ID, err)
	}
	return nil
}

// RepairCache rewrites the cache entry from the durable record. The
// sweeper uses this to heal staleness left by swallowed durable failures.
func (s *Store) RepairCache(ctx context.Context, id string) error {
	session, err := s.repo.Find(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return s.rdb.Del(ctx, cacheKey(id)).Err()
	}
	return s.writeCache(ctx, session)
}

func (s *Store) writeCache(ctx context.Context, session *checkout.Session) error {
	buf, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, cacheKey(session.ID), buf, cacheTTL).Err()
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}
