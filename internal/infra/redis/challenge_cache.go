package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const generationTTL = 24 * time.Hour

// fillScript caches a read only if no write bumped the generation since the read began.
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or ""
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// ChallengeCache is a read-through cache in front of another ChallengeRepository.
// Challenges are stored as JSON under challenge:{id}; every write goes to the backing
// repository first, then bumps challenge:{id}:gen and drops the cached copy.
type ChallengeCache struct {
	client *redis.Client
	next   app.ChallengeRepository
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group
}

func NewChallengeCache(client *redis.Client, next app.ChallengeRepository, ttl time.Duration, log *logger.Logger) *ChallengeCache {
	return &ChallengeCache{client: client, next: next, ttl: ttl, log: logger.OrNop(log)}
}

func (c *ChallengeCache) Get(ctx context.Context, id string) (domain.Challenge, error) {
	if challenge, ok := c.cached(ctx, id); ok {
		return challenge, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if challenge, ok := c.cached(ctx, id); ok {
			return challenge, nil
		}
		gen, err := c.client.Get(ctx, c.genKey(id)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			c.log.Debug("challenge cache generation read failed", "challengeId", id, "error", err)
			return c.next.Get(ctx, id)
		}
		challenge, err := c.next.Get(ctx, id)
		if err != nil {
			return domain.Challenge{}, err
		}
		c.fill(ctx, id, gen, challenge)
		return challenge, nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return result.(domain.Challenge), nil
}

func (c *ChallengeCache) Create(ctx context.Context, challenge domain.Challenge) error {
	return c.next.Create(ctx, challenge)
}

func (c *ChallengeCache) List(ctx context.Context, filter app.ChallengeFilter) ([]domain.Challenge, int, error) {
	return c.next.List(ctx, filter)
}

func (c *ChallengeCache) ListOverdue(ctx context.Context, now time.Time) ([]domain.Challenge, error) {
	return c.next.ListOverdue(ctx, now)
}

func (c *ChallengeCache) Update(ctx context.Context, challenge domain.Challenge) error {
	if err := c.next.Update(ctx, challenge); err != nil {
		return err
	}
	c.invalidate(ctx, challenge.ID)
	return nil
}

func (c *ChallengeCache) UpdateStatus(ctx context.Context, id string, from, to domain.ChallengeStatus, at time.Time) error {
	if err := c.next.UpdateStatus(ctx, id, from, to, at); err != nil {
		// a conflict means our cached status may be stale
		if errors.Is(err, domain.ErrStateConflict) {
			c.invalidate(ctx, id)
		}
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *ChallengeCache) UpdateStats(ctx context.Context, id string, stats domain.ChallengeStats) error {
	if err := c.next.UpdateStats(ctx, id, stats); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *ChallengeCache) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *ChallengeCache) cached(ctx context.Context, id string) (domain.Challenge, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("challenge cache read failed", "challengeId", id, "error", err)
		}
		return domain.Challenge{}, false
	}
	var challenge domain.Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return domain.Challenge{}, false
	}
	return challenge, true
}

func (c *ChallengeCache) fill(ctx context.Context, id, gen string, challenge domain.Challenge) {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return
	}
	ttl := c.ttlWithJitter()
	keys := []string{c.key(id), c.genKey(id)}
	if err := fillScript.Run(ctx, c.client, keys, gen, raw, ttl.Milliseconds()).Err(); err != nil {
		c.log.Debug("challenge cache fill failed", "challengeId", id, "error", err)
	}
}

func (c *ChallengeCache) invalidate(ctx context.Context, id string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(id))
		pipe.Expire(ctx, c.genKey(id), generationTTL)
		pipe.Del(ctx, c.key(id))
		return nil
	})
	if err != nil {
		c.log.Warn("challenge cache invalidation failed", "challengeId", id, "error", err)
	}
}

func (c *ChallengeCache) key(id string) string {
	return "challenge:" + id
}

func (c *ChallengeCache) genKey(id string) string {
	return "challenge:" + id + ":gen"
}

func (c *ChallengeCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
