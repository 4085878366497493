// Package redis provides a ratelimit.Store backed by Redis. Each counter is
// a hash {count, start, window} with a TTL equal to its window; check and
// increment run inside Lua scripts so they are atomic on the server.
package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

// ARGV: now_ms, window_ms
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local h = redis.call('HMGET', KEYS[1], 'start', 'window')
local start, window = tonumber(h[1]), tonumber(h[2])
if start and window and now < start + window then
  return redis.call('HINCRBY', KEYS[1], 'count', 1)
end
redis.call('HSET', KEYS[1], 'count', 1, 'start', ARGV[1], 'window', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// ARGV: now_ms, then rate_i, window_ms_i for every key.
// Returns {0} when admitted, {i, count, start, window} for the first denial.
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
for i = 1, #KEYS do
  local rate = tonumber(ARGV[2 * i])
  local h = redis.call('HMGET', KEYS[i], 'count', 'start', 'window')
  local count, start, window = tonumber(h[1]), tonumber(h[2]), tonumber(h[3])
  if count and start and window and now < start + window and count >= rate then
    return {i, count, start, window}
  end
end
for i = 1, #KEYS do
  local h = redis.call('HMGET', KEYS[i], 'start', 'window')
  local start, window = tonumber(h[1]), tonumber(h[2])
  if start and window and now < start + window then
    redis.call('HINCRBY', KEYS[i], 'count', 1)
  else
    redis.call('HSET', KEYS[i], 'count', 1, 'start', ARGV[1], 'window', ARGV[2 * i + 1])
    redis.call('PEXPIRE', KEYS[i], ARGV[2 * i + 1])
  end
end
return {0}
`)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	owned  bool
}

var _ ratelimit.Store = (*Store)(nil)

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, ":") }
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open dials Redis and checks the connection. The returned store owns the
// client and closes it on Close.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}

	var opts []Option
	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	s := New(client, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: "throttle"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}

// redisKey keeps every counter of one (resolver, client) pair in the same
// hash slot so multi-key scripts also work on Redis Cluster.
func (s *Store) redisKey(k ratelimit.Key) string {
	return s.prefix + ":{" + ratelimit.Escape(k.Resolver) + "|" + ratelimit.Escape(string(k.Client)) + "}:" + ratelimit.Escape(k.Scope)
}

func (s *Store) Get(ctx context.Context, key ratelimit.Key, now time.Time) (ratelimit.Record, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.redisKey(key), "count", "start", "window").Result()
	if err != nil {
		return ratelimit.Record{}, false, errors.Wrap(err, "redis hmget")
	}
	count, ok1 := toInt(vals[0])
	start, ok2 := toInt(vals[1])
	window, ok3 := toInt(vals[2])
	if !ok1 || !ok2 || !ok3 {
		return ratelimit.Record{}, false, nil
	}
	rec := record(count, start, window)
	if rec.Expired(now) {
		return ratelimit.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) Increment(ctx context.Context, key ratelimit.Key, window time.Duration, now time.Time) (int, error) {
	n, err := incrementScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, now.UnixMilli(), window.Milliseconds()).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "redis increment")
	}
	return int(n), nil
}

func (s *Store) Admit(ctx context.Context, limits []ratelimit.Limit, now time.Time) (ratelimit.Admission, error) {
	if len(limits) == 0 {
		return ratelimit.Admission{Allowed: true}, nil
	}
	keys := make([]string, len(limits))
	args := make([]any, 0, 1+2*len(limits))
	args = append(args, now.UnixMilli())
	for i, l := range limits {
		keys[i] = s.redisKey(l.Key)
		args = append(args, l.Rate, l.Window.Milliseconds())
	}

	res, err := admitScript.Run(ctx, s.rdb, keys, args...).Int64Slice()
	if err != nil {
		return ratelimit.Admission{}, errors.Wrap(err, "redis admit")
	}
	if len(res) == 0 || res[0] == 0 {
		return ratelimit.Admission{Allowed: true}, nil
	}
	if len(res) < 4 {
		return ratelimit.Admission{}, errors.Errorf("redis admit: unexpected reply %v", res)
	}
	return ratelimit.Admission{
		Denied: int(res[0]) - 1,
		Record: record(res[1], res[2], res[3]),
	}, nil
}

func record(count, startMS, windowMS int64) ratelimit.Record {
	return ratelimit.Record{
		Count:  int(count),
		Start:  time.UnixMilli(startMS),
		Window: time.Duration(windowMS) * time.Millisecond,
	}
}

func toInt(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
