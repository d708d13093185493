package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockTTL       = 30 * time.Second
	defaultRetryInterval = time.Second
	defaultMaxAttempts   = 100
	// Credentials this close to expiry are dropped instead of stored, so
	// the next caller refreshes rather than using a token that expires
	// mid-flight.
	defaultSafetyMargin = 100 * time.Second
)

// RedisStore is the distributed credential cache. The refresh lock is a
// SET-NX-with-TTL key; while held, a renewal goroutine keeps extending the
// TTL so long-running fetches are not preempted, and release deletes the
// key after the goroutine exits.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger

	LockTTL       time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	SafetyMargin  time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{
		client:        client,
		log:           logger,
		LockTTL:       defaultLockTTL,
		RetryInterval: defaultRetryInterval,
		MaxAttempts:   defaultMaxAttempts,
		SafetyMargin:  defaultSafetyMargin,
	}, nil
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func credentialKey(tenant Tenant) string {
	return fmt.Sprintf("wechat:%d:token", tenant)
}

func lockKey(tenant Tenant) string {
	return fmt.Sprintf("wechat:%d:lock", tenant)
}

// Get returns the cached credential, or nil when absent or expired. The
// key's own TTL already excludes the safety margin, but the expiry check
// stays authoritative.
func (s *RedisStore) Get(ctx context.Context, tenant Tenant) (*Credential, error) {
	val, err := s.client.Get(ctx, credentialKey(tenant)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(val), &cred); err != nil {
		return nil, err
	}
	if cred.Expired() {
		return nil, nil
	}
	return &cred, nil
}

// Set stores the credential with a TTL shortened by the safety margin. A
// credential already inside the margin is deleted instead, and nil deletes.
func (s *RedisStore) Set(ctx context.Context, tenant Tenant, cred *Credential) error {
	key := credentialKey(tenant)

	if cred == nil {
		s.log.Debug().Uint64("tenant", uint64(tenant)).Msg("deleting credential")
		return s.client.Del(ctx, key).Err()
	}

	ttl := cred.RemainTTL()
	if ttl <= s.SafetyMargin {
		s.log.Info().
			Uint64("tenant", uint64(tenant)).
			Dur("ttl", ttl).
			Msg("credential near expiry, dropping instead of caching")
		return s.client.Del(ctx, key).Err()
	}

	val, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, val, ttl-s.SafetyMargin).Err()
}

// Lock acquires the tenant's cluster-wide refresh lock.
func (s *RedisStore) Lock(ctx context.Context, tenant Tenant) (*Guard, error) {
	key := lockKey(tenant)
	owner := ulid.Make().String()

	acquired := false
	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, key, owner, s.LockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.RetryInterval):
		}
	}
	if !acquired {
		return nil, ErrLockTimeout
	}

	s.log.Debug().Uint64("tenant", uint64(tenant)).Str("owner", owner).Msg("refresh lock acquired")

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.renew(key, stop, done)

	return newGuard(func() {
		close(stop)
		<-done
	}), nil
}

// renew extends the lock TTL until stopped, then deletes the lock key.
// Runs on a background context: the request context may already be gone by
// release time, and the delete must still happen.
func (s *RedisStore) renew(key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx := context.Background()
	ticker := time.NewTicker(s.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			if err := s.client.Del(ctx, key).Err(); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("refresh lock delete failed")
			}
			return
		case <-ticker.C:
			if err := s.client.Expire(ctx, key, s.LockTTL).Err(); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("refresh lock renewal failed")
			}
		}
	}
}
