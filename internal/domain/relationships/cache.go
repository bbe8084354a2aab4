package relationships

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStateTTL = 30 * time.Second

	// generationTTL bounds how long a pair's counter outlives its last action.
	// It must exceed the longest in-flight Resolve.
	generationTTL = 24 * time.Hour
)

// noGeneration is returned when the generation cannot be read. Set never
// stores under it.
const noGeneration int64 = -1

// pairTag is the same for (a, b) and (b, a). The braces keep every key of a
// pair in one Redis Cluster slot so the set script can touch them together.
func pairTag(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return "{" + lo + ":" + hi + "}"
}

func generationKey(a, b uuid.UUID) string {
	return "rel:" + pairTag(a, b) + ":gen"
}

func stateKey(viewerID, targetID uuid.UUID) string {
	return fmt.Sprintf("rel:%s:state:%s", pairTag(viewerID, targetID), viewerID)
}

// setIfGeneration stores the state only while the pair's generation still
// matches the one read before the store was queried.
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisStateCache memoizes resolved states in Redis. Cache failures are
// logged and treated as misses.
type RedisStateCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStateCache returns nil when redisClient is nil so callers can pass
// the result straight to NewService.
func NewRedisStateCache(redisClient *redis.Client, ttl time.Duration) StateCache {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStateCache{redis: redisClient, ttl: ttl}
}

func (c *RedisStateCache) Get(ctx context.Context, viewerID, targetID uuid.UUID) (*State, bool) {
	raw, err := c.redis.Get(ctx, stateKey(viewerID, targetID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Relationship state cache read failed")
		return nil, false
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *RedisStateCache) Generation(ctx context.Context, a, b uuid.UUID) int64 {
	gen, err := c.redis.Get(ctx, generationKey(a, b)).Int64()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		log.Warn().Err(err).Msg("Relationship state generation read failed")
		return noGeneration
	}
	return gen
}

func (c *RedisStateCache) Set(ctx context.Context, viewerID, targetID uuid.UUID, state State, gen int64) {
	if gen == noGeneration {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	keys := []string{generationKey(viewerID, targetID), stateKey(viewerID, targetID)}
	if err := setIfGeneration.Run(ctx, c.redis, keys, gen, data, c.ttl.Milliseconds()).Err(); err != nil {
		log.Warn().Err(err).Msg("Relationship state cache write failed")
	}
}

func (c *RedisStateCache) Invalidate(ctx context.Context, a, b uuid.UUID) {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(a, b))
		pipe.Expire(ctx, generationKey(a, b), generationTTL)
		pipe.Del(ctx, stateKey(a, b), stateKey(b, a))
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Relationship state cache invalidation failed")
	}
}

type cachedState struct {
	state     State
	expiresAt time.Time
}

// MemoryStateCache is the in-process counterpart of RedisStateCache for a
// single instance running on the memory store.
type MemoryStateCache struct {
	ttl         time.Duration
	generations map[string]int64
	states      map[string]cachedState
	now         func() time.Time
	mu          sync.Mutex
}

// NewMemoryStateCache creates an empty in-process state cache
func NewMemoryStateCache(ttl time.Duration) *MemoryStateCache {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &MemoryStateCache{
		ttl:         ttl,
		generations: make(map[string]int64),
		states:      make(map[string]cachedState),
		now:         time.Now,
	}
}

func (c *MemoryStateCache) Get(_ context.Context, viewerID, targetID uuid.UUID) (*State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := stateKey(viewerID, targetID)
	entry, ok := c.states[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.states, key)
		return nil, false
	}
	st := entry.state
	return &st, true
}

func (c *MemoryStateCache) Generation(_ context.Context, a, b uuid.UUID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[pairTag(a, b)]
}

func (c *MemoryStateCache) Set(_ context.Context, viewerID, targetID uuid.UUID, state State, gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[pairTag(viewerID, targetID)] != gen {
		return
	}
	c.states[stateKey(viewerID, targetID)] = cachedState{state: state, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryStateCache) Invalidate(_ context.Context, a, b uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[pairTag(a, b)]++
	delete(c.states, stateKey(a, b))
	delete(c.states, stateKey(b, a))
}
