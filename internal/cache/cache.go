// Package cache provides a single-flight memoizer for read endpoints whose
// data rarely changes within a user session.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// LoadFunc fetches a fresh value from the backing source.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Config configures a Cache.
type Config struct {
	// Name labels log entries for this cache.
	Name string
	// TTL expires entries after the given age. Zero means entries never
	// expire on their own and only Clear or Refresh invalidate.
	TTL    time.Duration
	Logger *zap.Logger
	Clock  Clock
}

const loadFlightKey = "load"

// Cache memoizes the result of a load function. Concurrent readers joining
// while a load is in flight share the same eventual result; a failed load is
// never cached and leaves any previous value untouched.
type Cache[T any] struct {
	name   string
	ttl    time.Duration
	load   LoadFunc[T]
	logger *zap.Logger
	clock  Clock

	group singleflight.Group

	mutex      sync.Mutex
	value      T
	hasValue   bool
	loadedAt   time.Time
	generation uint64
}

// New constructs a Cache around the given load function.
func New[T any](configuration Config, load LoadFunc[T]) *Cache[T] {
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Cache[T]{
		name:   configuration.Name,
		ttl:    configuration.TTL,
		load:   load,
		logger: logger,
		clock:  clock,
	}
}

// Get returns the cached value when fresh, joins an in-flight load when one
// exists, and otherwise issues exactly one new load.
func (cache *Cache[T]) Get(ctx context.Context) (T, error) {
	cache.mutex.Lock()
	if cache.hasValue && !cache.expiredLocked() {
		value := cache.value
		cache.mutex.Unlock()
		cache.logger.Debug("cache hit",
			zap.String("code", "cache.hit"),
			zap.String("cache", cache.name),
		)
		return value, nil
	}
	flightGeneration := cache.generation
	cache.mutex.Unlock()

	result, loadErr, shared := cache.group.Do(loadFlightKey, func() (any, error) {
		started := cache.clock.Now()
		loaded, err := cache.load(ctx)
		if err != nil {
			cache.logger.Warn("cache load failed",
				zap.String("code", "cache.load_failed"),
				zap.String("cache", cache.name),
				zap.Error(err),
			)
			return nil, err
		}

		cache.mutex.Lock()
		// A Clear issued while this load was in flight detaches it: the
		// result is still delivered to waiters but not stored.
		if cache.generation == flightGeneration {
			cache.value = loaded
			cache.hasValue = true
			cache.loadedAt = cache.clock.Now()
		}
		cache.mutex.Unlock()

		cache.logger.Info("cache loaded",
			zap.String("code", "cache.loaded"),
			zap.String("cache", cache.name),
			zap.Duration("elapsed", cache.clock.Now().Sub(started)),
		)
		return loaded, nil
	})
	if loadErr != nil {
		var zero T
		return zero, loadErr
	}
	if shared {
		cache.logger.Debug("joined in-flight cache load",
			zap.String("code", "cache.joined_flight"),
			zap.String("cache", cache.name),
		)
	}
	return result.(T), nil
}

// Refresh clears the entry and reloads it. When the reload fails the
// previous value is restored so the cache never ends up empty just because a
// refresh attempt failed, and the error is re-raised.
func (cache *Cache[T]) Refresh(ctx context.Context) (T, error) {
	cache.mutex.Lock()
	previousValue := cache.value
	hadValue := cache.hasValue
	cache.clearLocked()
	cache.mutex.Unlock()

	value, loadErr := cache.Get(ctx)
	if loadErr == nil {
		return value, nil
	}

	cache.mutex.Lock()
	if hadValue && !cache.hasValue {
		cache.value = previousValue
		cache.hasValue = true
		cache.loadedAt = cache.clock.Now()
		cache.logger.Warn("refresh failed; previous value restored",
			zap.String("code", "cache.refresh_restored"),
			zap.String("cache", cache.name),
		)
	}
	cache.mutex.Unlock()

	var zero T
	return zero, loadErr
}

// Clear drops the cached value and detaches any in-flight load.
func (cache *Cache[T]) Clear() {
	cache.mutex.Lock()
	cache.clearLocked()
	cache.mutex.Unlock()
	cache.logger.Debug("cache cleared",
		zap.String("code", "cache.cleared"),
		zap.String("cache", cache.name),
	)
}

// Cached returns the current value without triggering a load. The second
// result reports whether a fresh value was present.
func (cache *Cache[T]) Cached() (T, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	if !cache.hasValue || cache.expiredLocked() {
		var zero T
		return zero, false
	}
	return cache.value, true
}

func (cache *Cache[T]) clearLocked() {
	var zero T
	cache.value = zero
	cache.hasValue = false
	cache.loadedAt = time.Time{}
	cache.generation++
	cache.group.Forget(loadFlightKey)
}

func (cache *Cache[T]) expiredLocked() bool {
	if cache.ttl <= 0 {
		return false
	}
	return cache.clock.Now().Sub(cache.loadedAt) >= cache.ttl
}
