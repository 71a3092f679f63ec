// Package profilecache caches payments API profiles so /me and /start do not hit the API on
// every update.
package profilecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/payments-bot/internal/payments"
)

// DefaultTTL is how long a cached profile is served.
const DefaultTTL = 5 * time.Minute

// Cache provides Redis-backed caching for payments profiles. A nil Cache or a Cache without a
// client is a no-op.
type Cache struct {
	client redis.Cmdable
}

// NewCache constructs a profile cache backed by the provided Redis client.
func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// Get fetches a cached profile if it exists.
func (c *Cache) Get(ctx context.Context, key string) (*payments.User, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var user payments.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &user, nil
}

// Set stores the profile for the provided TTL.
func (c *Cache) Set(ctx context.Context, key string, user *payments.User, ttl time.Duration) error {
	if c == nil || c.client == nil || user == nil {
		return nil
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

// Invalidate removes the cached profile entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("delete cached profile: %w", err)
	}

	return nil
}

func cacheKey(key string) string {
	return "profile:" + key
}

// ProfileSource loads a chat's profile from the payments API.
type ProfileSource interface {
	GetProfile(ctx context.Context, chatID int64) (*payments.User, error)
}

// TokenSource resolves the bearer token of a chat's session.
type TokenSource interface {
	Token(ctx context.Context, chatID int64) (string, error)
}

// Profiles is a read-through cache in front of a ProfileSource. Entries are keyed by chat and
// session token, so logging in as someone else never serves the previous profile.
type Profiles struct {
	source ProfileSource
	tokens TokenSource
	cache  *Cache
	ttl    time.Duration
	log    *slog.Logger
}

// NewProfiles wraps source. A non-positive ttl selects DefaultTTL.
func NewProfiles(source ProfileSource, tokens TokenSource, cache *Cache, ttl time.Duration, log *slog.Logger) *Profiles {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Profiles{
		source: source,
		tokens: tokens,
		cache:  cache,
		ttl:    ttl,
		log:    log,
	}
}

// GetProfile serves the cached profile or loads and caches it. Cache failures fall through to
// the API.
func (p *Profiles) GetProfile(ctx context.Context, chatID int64) (*payments.User, error) {
	token, err := p.tokens.Token(ctx, chatID)
	if err != nil {
		return p.source.GetProfile(ctx, chatID)
	}
	key := profileKey(chatID, token)

	if cached, err := p.cache.Get(ctx, key); err != nil {
		p.log.Warn("profile cache read failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
	} else if cached != nil {
		return cached, nil
	}

	user, err := p.source.GetProfile(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, user, p.ttl); err != nil {
		p.log.Warn("profile cache write failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
	return user, nil
}

func profileKey(chatID int64, token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%d:%s", chatID, hex.EncodeToString(sum[:8]))
}
