package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/config"
)

// bucket decides whether the request identified by key may proceed.
type bucket interface {
    take(ctx context.Context, key string) (allowed bool, remaining int64, retryAfter time.Duration, err error)
}

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// redisBucket shares one token bucket per key across all server
// instances.
type redisBucket struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

func (b *redisBucket) take(ctx context.Context, key string) (bool, int64, time.Duration, error) {
    args := []interface{}{
        time.Now().UnixMilli(),
        b.cfg.Capacity,
        b.cfg.RefillTokens,
        b.cfg.RefillInterval.Milliseconds(),
        int64(b.cfg.TTL / time.Second),
    }
    vals, err := limiterScript.Run(ctx, b.rdb, []string{key}, args...).Result()
    if err != nil {
        return false, 0, 0, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return false, 0, 0, fmt.Errorf("unexpected script result %#v", vals)
    }
    return asInt64(arr[0]) == 1, asInt64(arr[1]), time.Duration(asInt64(arr[2])) * time.Millisecond, nil
}

// localBucket keeps per-key limiters in process memory.  It is used when
// Redis is not configured, so a single instance is still protected.
type localBucket struct {
    cfg   config.RateLimitConfig
    mu    sync.Mutex
    keys  map[string]*localEntry
    sweep time.Time
}

type localEntry struct {
    lim  *rate.Limiter
    seen time.Time
}

func newLocalBucket(cfg config.RateLimitConfig) *localBucket {
    return &localBucket{cfg: cfg, keys: make(map[string]*localEntry)}
}

func (b *localBucket) take(_ context.Context, key string) (bool, int64, time.Duration, error) {
    now := time.Now()
    b.mu.Lock()
    defer b.mu.Unlock()

    if now.Sub(b.sweep) > b.cfg.TTL {
        for k, e := range b.keys {
            if now.Sub(e.seen) > b.cfg.TTL {
                delete(b.keys, k)
            }
        }
        b.sweep = now
    }

    e, ok := b.keys[key]
    if !ok {
        every := b.cfg.RefillInterval / time.Duration(b.cfg.RefillTokens)
        e = &localEntry{lim: rate.NewLimiter(rate.Every(every), b.cfg.Capacity)}
        b.keys[key] = e
    }
    e.seen = now

    r := e.lim.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return false, 0, delay, nil
    }
    return true, int64(e.lim.TokensAt(now)), 0, nil
}

// NewTokenBucket limits requests per key (see RateLimitConfig.KeyStrategy).
// With a Redis client the bucket is shared across instances; without one
// it falls back to an in-process limiter.  Redis errors let the request
// through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    var b bucket
    if rdb != nil {
        b = &redisBucket{cfg: cfg, rdb: rdb}
    } else {
        b = newLocalBucket(cfg)
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            allowed, remaining, retry, err := b.take(c.Request().Context(), key)
            if err != nil {
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] bucket error for key=%s: %v", key, err)
                }
                return next(c)
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if !allowed {
                secs := int(math.Ceil(retry.Seconds()))
                if secs < 1 {
                    secs = 1
                }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    c.Logger().Infof("[ratelimit] block key=%s retry=%s", key, retry)
                }
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := identityKey(c)
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default: // "ip_user_route"
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
