package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// getScript increments hit_count only when the entry exists, then returns it.
var getScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'hit_count', 1)
return redis.call('HGETALL', KEYS[1])
`)

// putScript writes the mutable fields and sets created_at, hit_count and the
// age index entry only on first insert.
var putScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'created_at') == 0 then
	redis.call('HSET', KEYS[1], 'created_at', ARGV[5], 'hit_count', 0)
	redis.call('ZADD', KEYS[2], ARGV[5], ARGV[6])
end
redis.call('HSET', KEYS[1], 'query_text', ARGV[1], 'response', ARGV[2], 'source_ids', ARGV[3], 'updated_at', ARGV[4])
return 1
`)

// deleteScript removes every entry whose created_at score is below ARGV[1].
var deleteScript = redis.NewScript(`
local hashes = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, h in ipairs(hashes) do
	redis.call('DEL', ARGV[2] .. h)
	redis.call('ZREM', KEYS[1], h)
end
return #hashes
`)

// RedisStore keeps each entry in a hash and indexes creation time in a sorted set.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})
	s := &RedisStore{client: client, prefix: opts.Prefix}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) entryKey(hash string) string { return s.prefix + "entry:" + hash }

func (s *RedisStore) indexKey() string { return s.prefix + "created" }

// EnsureSchema checks that the server is reachable. Redis needs no schema.
func (s *RedisStore) EnsureSchema(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get atomically increments and returns the entry for hash.
func (s *RedisStore) Get(ctx context.Context, hash string) (*models.CacheEntry, error) {
	res, err := getScript.Run(ctx, s.client, []string{s.entryKey(hash)}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache lookup failed: %w", err)
	}
	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return decodeEntry(hash, fields)
}

func decodeEntry(hash string, fields map[string]string) (*models.CacheEntry, error) {
	e := &models.CacheEntry{
		QueryHash: hash,
		QueryText: fields["query_text"],
		Response:  fields["response"],
	}
	if raw := fields["source_ids"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.SourceIDs); err != nil {
			return nil, fmt.Errorf("corrupt source ids for %s: %w", hash, err)
		}
	}
	var err error
	if e.HitCount, err = strconv.ParseInt(fields["hit_count"], 10, 64); err != nil {
		return nil, fmt.Errorf("corrupt hit count for %s: %w", hash, err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for %s: %w", hash, err)
	}
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return e, nil
}

// Put upserts entry, keeping created_at and hit_count of an existing one.
func (s *RedisStore) Put(ctx context.Context, entry *models.CacheEntry) error {
	ids := entry.SourceIDs
	if ids == nil {
		ids = []string{}
	}
	sourceIDs, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode source ids: %w", err)
	}
	err = putScript.Run(ctx, s.client,
		[]string{s.entryKey(entry.QueryHash), s.indexKey()},
		entry.QueryText, entry.Response, string(sourceIDs),
		entry.UpdatedAt.UnixMilli(), entry.CreatedAt.UnixMilli(), entry.QueryHash,
	).Err()
	if err != nil {
		return fmt.Errorf("redis cache write failed: %w", err)
	}
	return nil
}

// Delete removes the entry for hash and its age index member.
func (s *RedisStore) Delete(ctx context.Context, hash string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.entryKey(hash))
		pipe.ZRem(ctx, s.indexKey(), hash)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis cache delete failed: %w", err)
	}
	return del.Val() > 0, nil
}

// DeleteOlderThan removes entries created before cutoff.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBelow(ctx, strconv.FormatInt(cutoff.UnixMilli(), 10))
}

// Clear removes every entry under the prefix.
func (s *RedisStore) Clear(ctx context.Context) (int64, error) {
	return s.deleteBelow(ctx, "+inf")
}

func (s *RedisStore) deleteBelow(ctx context.Context, score string) (int64, error) {
	n, err := deleteScript.Run(ctx, s.client, []string{s.indexKey()}, score, s.prefix+"entry:").Int64()
	if err != nil {
		return 0, fmt.Errorf("redis cache delete failed: %w", err)
	}
	return n, nil
}

// Stats reports entry count, accumulated hits and the oldest entry.
func (s *RedisStore) Stats(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{Backend: config.CacheBackendRedis}
	hashes, err := s.client.ZRangeWithScores(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache stats failed: %w", err)
	}
	if len(hashes) == 0 {
		return stats, nil
	}
	stats.Entries = int64(len(hashes))
	stats.Oldest = time.UnixMilli(int64(hashes[0].Score)).UTC()

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(hashes))
	for i, z := range hashes {
		cmds[i] = pipe.HGet(ctx, s.entryKey(z.Member.(string)), "hit_count")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis cache stats failed: %w", err)
	}
	for _, cmd := range cmds {
		if n, err := cmd.Int64(); err == nil {
			stats.TotalHits += n
		}
	}
	return stats, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
