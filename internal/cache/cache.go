// Package cache is the guarded Redis capability. Keys follow a fixed grammar
// so a key can never smuggle pattern syntax into SCAN, TTLs are capped the
// same way timeouts are, and values are size-capped on write.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/toolgate/internal/guard"
)

// MaxKeyLen caps key length regardless of grammar.
const MaxKeyLen = 256

// keyPattern is the only grammar a cache key may have. Notably absent: the
// glob metacharacters * ? [ ] that SCAN MATCH interprets.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9:_.-]+$`)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a Redis client and verifies the connection.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Service wraps the shared client with the current policy. The client
// outlives reloads; MaxTTL and Limits are rebuilt on each reload.
type Service struct {
	Client *redis.Client
	MaxTTL time.Duration
	Limits guard.Limits
}

// GetResult is the outcome of a guarded cache read.
type GetResult struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// KeysResult is the outcome of a guarded key scan.
type KeysResult struct {
	Keys      []string `json:"keys"`
	Truncated bool     `json:"truncated"`
}

// ValidateKey accepts key only if it matches the key grammar.
func ValidateKey(key string) *guard.Rejection {
	if key == "" {
		return guard.Reject(guard.KindMalformedSyntax, "cache key is empty")
	}
	if len(key) > MaxKeyLen {
		return guard.RejectCap(guard.KindMalformedSyntax, MaxKeyLen,
			"cache key exceeds %d characters", MaxKeyLen)
	}
	if !keyPattern.MatchString(key) {
		return guard.Reject(guard.KindMalformedSyntax, "cache key must match [A-Za-z0-9:_.-]+")
	}
	return nil
}

// ClampTTL resolves a requested TTL in seconds against the policy maximum.
// Zero means the maximum itself; above the maximum is rejected with the cap
// disclosed, the same contract as execution timeouts.
func (s Service) ClampTTL(ttlSeconds int) (time.Duration, *guard.Rejection) {
	if ttlSeconds == 0 {
		return s.MaxTTL, nil
	}
	if ttlSeconds < 0 {
		return 0, guard.Reject(guard.KindMalformedSyntax, "ttl must be positive")
	}
	d := time.Duration(ttlSeconds) * time.Second
	if s.MaxTTL > 0 && d > s.MaxTTL {
		maxSeconds := int64(s.MaxTTL / time.Second)
		return 0, guard.RejectCap(guard.KindTimeoutTooLarge, maxSeconds,
			"requested ttl %ds exceeds the maximum %ds", ttlSeconds, maxSeconds)
	}
	return d, nil
}

// Get reads one key. A missing key is Found=false, not an error.
func (s Service) Get(ctx context.Context, key string) (*GetResult, error) {
	if rej := ValidateKey(key); rej != nil {
		return nil, rej
	}
	val, err := s.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return &GetResult{Key: key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return &GetResult{Key: key, Value: val, Found: true}, nil
}

// Set stores one key with the clamped TTL.
func (s Service) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	if rej := ValidateKey(key); rej != nil {
		return rej
	}
	if max := s.Limits.MaxValueBytes; max > 0 && int64(len(value)) > max {
		return guard.RejectCap(guard.KindPayloadTooLarge, max,
			"value is %d bytes, the maximum is %d", len(value), max)
	}
	ttl, rej := s.ClampTTL(ttlSeconds)
	if rej != nil {
		return rej
	}
	if err := s.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Del removes one key and reports whether it existed.
func (s Service) Del(ctx context.Context, key string) (bool, error) {
	if rej := ValidateKey(key); rej != nil {
		return false, rej
	}
	n, err := s.Client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: del %s: %w", key, err)
	}
	return n > 0, nil
}

// Keys scans for keys with the given prefix, capped at maxKeys. The prefix
// obeys the key grammar, so the appended * is the only glob in the pattern.
func (s Service) Keys(ctx context.Context, prefix string, maxKeys int) (*KeysResult, error) {
	if prefix != "" {
		if rej := ValidateKey(prefix); rej != nil {
			return nil, rej
		}
	}
	cap, rej := guard.CapCount(maxKeys, s.Limits.MaxEntries)
	if rej != nil {
		return nil, rej
	}

	match := prefix + "*"
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.Client.Scan(ctx, cursor, match, int64(cap)+1).Result()
		if err != nil {
			return nil, fmt.Errorf("cache: scan %q: %w", match, err)
		}
		keys = append(keys, batch...)
		if cap > 0 && len(keys) > cap {
			return &KeysResult{Keys: keys[:cap], Truncated: true}, nil
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return &KeysResult{Keys: keys}, nil
}
