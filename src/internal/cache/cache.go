package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache interface defines caching operations
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Close() error
}

// RedisCache implements Cache interface using Redis
type RedisCache struct {
	client *redis.Client
}

// MemoryCache implements Cache interface using in-memory storage (fallback)
type MemoryCache struct {
	data map[string]cacheItem
	mu   sync.RWMutex
	now  func() time.Time
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// CacheManager manages cache instances with fallback
type CacheManager struct {
	primary   Cache
	fallback  Cache
	enabled   bool
	keyPrefix string
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cfg *viper.Viper) *CacheManager {
	manager := &CacheManager{
		enabled:   cfg.GetBool("cache.enabled"),
		keyPrefix: cfg.GetString("cache.key_prefix"),
	}

	if manager.keyPrefix == "" {
		manager.keyPrefix = "landregistry:"
	}

	// Try to connect to Redis
	if manager.enabled && cfg.GetBool("redis.enabled") {
		redisCache, err := NewRedisCache(cfg)
		if err == nil {
			manager.primary = redisCache
		}
	}

	// Always have memory cache as fallback
	manager.fallback = NewMemoryCache()

	return manager
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(cfg *viper.Viper) (*RedisCache, error) {
	addr := cfg.GetString("redis.addr")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.GetString("redis.password"),
		DB:           cfg.GetInt("redis.db"),
		DialTimeout:  time.Second * 5,
		ReadTimeout:  time.Second * 3,
		WriteTimeout: time.Second * 3,
		PoolSize:     10,
		PoolTimeout:  time.Second * 4,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewMemoryCache creates a new in-memory cache instance
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]cacheItem),
		now:  time.Now,
	}
}

// Backend names the active primary store
func (cm *CacheManager) Backend() string {
	switch {
	case !cm.enabled:
		return "disabled"
	case cm.primary != nil:
		return "redis"
	}
	return "memory"
}

func (cm *CacheManager) key(key string) string {
	return cm.keyPrefix + key
}

func (cm *CacheManager) Get(ctx context.Context, key string) (string, error) {
	if !cm.enabled {
		return "", ErrMiss
	}

	fullKey := cm.key(key)

	// Try primary cache first
	if cm.primary != nil {
		value, err := cm.primary.Get(ctx, fullKey)
		if err == nil {
			return value, nil
		}
	}

	// Fallback to memory cache
	return cm.fallback.Get(ctx, fullKey)
}

func (cm *CacheManager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if !cm.enabled {
		return nil
	}

	fullKey := cm.key(key)

	// Set in primary cache
	if cm.primary != nil {
		if err := cm.primary.Set(ctx, fullKey, value, ttl); err == nil {
			return nil
		}
	}

	// Fallback to memory cache
	return cm.fallback.Set(ctx, fullKey, value, ttl)
}

func (cm *CacheManager) Delete(ctx context.Context, key string) error {
	if !cm.enabled {
		return nil
	}

	fullKey := cm.key(key)

	// Delete from both caches
	if cm.primary != nil {
		cm.primary.Delete(ctx, fullKey)
	}
	return cm.fallback.Delete(ctx, fullKey)
}

func (cm *CacheManager) DeletePattern(ctx context.Context, pattern string) error {
	if !cm.enabled {
		return nil
	}

	fullPattern := cm.key(pattern)

	// Delete from both caches
	if cm.primary != nil {
		cm.primary.DeletePattern(ctx, fullPattern)
	}
	return cm.fallback.DeletePattern(ctx, fullPattern)
}

// GetJSON decodes a cached JSON value into dest
func (cm *CacheManager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	value, err := cm.Get(ctx, key)
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(value), dest)
}

// SetJSON stores value encoded as JSON
func (cm *CacheManager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !cm.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return cm.Set(ctx, key, string(data), ttl)
}

func (cm *CacheManager) Close() error {
	if cm.primary != nil {
		cm.primary.Close()
	}
	if cm.fallback != nil {
		cm.fallback.Close()
	}
	return nil
}

// RedisCache methods

func (rc *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := rc.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return value, err
}

func (rc *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

func (rc *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := rc.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return rc.client.Del(ctx, keys...).Err()
	}

	return nil
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// MemoryCache methods

func (mc *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	mc.mu.RLock()
	item, exists := mc.data[key]
	mc.mu.RUnlock()

	if !exists {
		return "", ErrMiss
	}

	if mc.now().After(item.expiresAt) {
		mc.Delete(ctx, key)
		return "", ErrMiss
	}

	return item.value, nil
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for k, item := range mc.data {
		if now.After(item.expiresAt) {
			delete(mc.data, k)
		}
	}

	mc.data[key] = cacheItem{
		value:     value,
		expiresAt: now.Add(ttl),
	}

	return nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key := range mc.data {
		if matchPattern(pattern, key) {
			delete(mc.data, key)
		}
	}
	return nil
}

func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data = make(map[string]cacheItem)
	return nil
}

// matchPattern supports a single leading or trailing wildcard
func matchPattern(pattern, str string) bool {
	if pattern == "*" {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(str, pattern[:len(pattern)-1])
	}

	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(str, pattern[1:])
	}

	return pattern == str
}

// Cache keys
const (
	CacheKeySession        = "session:%s"
	CacheKeyLandStatistics = "lands:statistics"
	CacheKeyDashboard      = "admin:dashboard"
)

// SessionKey returns the key caching a session's liveness
func SessionKey(tokenID string) string {
	return fmt.Sprintf(CacheKeySession, tokenID)
}
