package leases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robonet-io/armbridge/core/infra/redisutil"
)

// RedisStore is a Redis-backed lease ledger. Acquire and release run as Lua
// scripts so check-and-set is atomic across bridges sharing one ledger.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed ledger from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Acquire attempts to take the lease for owner, refreshing it when the
// owner already holds it.
func (s *RedisStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lease, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("lease store unavailable")
	}
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return nil, false, fmt.Errorf("resource and owner required")
	}
	ttl = normalizeTTL(ttl)
	now := time.Now().UTC()
	res, err := s.client.Eval(ctx, acquireScript, []string{leaseKey(resource)},
		owner,
		ttl.Milliseconds(),
		now.Unix(),
	).Result()
	if err != nil {
		return nil, false, err
	}
	payload, ok := res.(string)
	if !ok || payload == "" {
		return nil, false, nil
	}
	lease, err := parseLease(payload, resource)
	if err != nil {
		return nil, false, err
	}
	return lease, true, nil
}

// Release deletes the record when owner holds it.
func (s *RedisStore) Release(ctx context.Context, resource, owner string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("lease store unavailable")
	}
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return false, fmt.Errorf("resource and owner required")
	}
	res, err := s.client.Eval(ctx, releaseScript, []string{leaseKey(resource)}, owner).Result()
	if err != nil {
		return false, err
	}
	code, _ := res.(int64)
	return code == 1, nil
}

// Get returns the current lease or nil when the resource is free.
func (s *RedisStore) Get(ctx context.Context, resource string) (*Lease, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("lease store unavailable")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}
	payload, err := s.client.Get(ctx, leaseKey(resource)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseLease(payload, resource)
}

func leaseKey(resource string) string {
	return "lease:" + resource
}

type leasePayload struct {
	Owner     string `json:"owner"`
	UpdatedAt int64  `json:"updated_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func parseLease(payload, resource string) (*Lease, error) {
	var decoded leasePayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decode lease: %w", err)
	}
	lease := &Lease{Resource: resource, Owner: decoded.Owner}
	if decoded.UpdatedAt > 0 {
		lease.UpdatedAt = time.Unix(decoded.UpdatedAt, 0).UTC()
	}
	if decoded.ExpiresAt > 0 {
		lease.ExpiresAt = time.Unix(decoded.ExpiresAt, 0).UTC()
	}
	return lease, nil
}

const acquireScript = `
local key = KEYS[1]
local owner = ARGV[1]
local ttl = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local payload = redis.call("GET", key)
if payload then
  local lease = cjson.decode(payload)
  if lease["owner"] ~= owner then
    return ""
  end
end
local lease = {owner = owner, updated_at = now, expires_at = now + math.floor(ttl/1000)}
local encoded = cjson.encode(lease)
redis.call("SET", key, encoded, "PX", ttl)
return encoded
`

const releaseScript = `
local key = KEYS[1]
local owner = ARGV[1]
local payload = redis.call("GET", key)
if not payload then
  return 1
end
local lease = cjson.decode(payload)
if lease["owner"] ~= owner then
  return 0
end
redis.call("DEL", key)
return 1
`
