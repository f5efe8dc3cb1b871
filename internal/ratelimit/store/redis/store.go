package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the sorted set to the window, then adds the hit
// only when the remaining count is under the limit. Running it as a script
// makes check-and-add atomic across server processes.
//
// KEYS[1] = counter key
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = limit, ARGV[4] = member
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  return 0
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return 1
`)

// Store is a sliding window counter shared by every server process that
// points at the same Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client, prefix: "civicdesk:", now: time.Now}
}

// IncrementAndCheck records a hit when the key is under limit.
func (s *Store) IncrementAndCheck(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	now := s.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(window.Milliseconds(), 10),
		strconv.Itoa(limit),
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

// Count returns the hits currently inside the window for key.
func (s *Store) Count(ctx context.Context, key string, window time.Duration) (int64, error) {
	min := strconv.FormatInt(s.now().Add(-window).UnixMilli()+1, 10)
	return s.client.ZCount(ctx, s.prefix+key, min, "+inf").Result()
}
