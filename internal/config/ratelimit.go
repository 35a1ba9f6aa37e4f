package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig tunes a token bucket: Capacity tokens, refilled by
// RefillTokens every RefillInterval.  Idle buckets are dropped after TTL.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads the RATE_LIMIT_* variables that guard every
// API route.
func LoadRateLimitConfig() RateLimitConfig {
    return loadRateLimit("RATE_LIMIT", RateLimitConfig{
        Enabled:        true,
        Capacity:       60,
        RefillTokens:   1,
        RefillInterval: time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_user_route",
        Prefix:         "rl",
    })
}

// LoadHoldRateLimitConfig reads the HOLD_RATE_LIMIT_* variables.  Holds
// lock seats for other customers, so the hold route gets a tighter
// per-user budget than the rest of the API.
func LoadHoldRateLimitConfig() RateLimitConfig {
    return loadRateLimit("HOLD_RATE_LIMIT", RateLimitConfig{
        Enabled:        true,
        Capacity:       10,
        RefillTokens:   1,
        RefillInterval: 6 * time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "user_route",
        Prefix:         "rl:hold",
    })
}

func loadRateLimit(p string, def RateLimitConfig) RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool(p+"_ENABLED", def.Enabled),
        Capacity:       envInt(p+"_CAPACITY", def.Capacity),
        RefillTokens:   envInt(p+"_REFILL_TOKENS", def.RefillTokens),
        RefillInterval: envDur(p+"_REFILL_INTERVAL", def.RefillInterval),
        TTL:            envDur(p+"_TTL", def.TTL),
        KeyStrategy:    envStr(p+"_KEY_STRATEGY", def.KeyStrategy),
        Prefix:         envStr(p+"_PREFIX", def.Prefix),
        Debug:          envBool(p+"_DEBUG", false),
    }
    if b := envInt(p+"_BURST", -1); b > 0 {
        cfg.Capacity = b
    }
    if every := envDur(p+"_REFILL_EVERY", 0); every > 0 {
        cfg.RefillTokens = 1
        cfg.RefillInterval = every
    }
    if cfg.Capacity < 1 {
        cfg.Capacity = 1
    }
    if cfg.RefillTokens < 1 {
        cfg.RefillTokens = 1
    }
    if cfg.RefillInterval <= 0 {
        cfg.RefillInterval = time.Second
    }
    if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
        cfg.TTL = minTTL
    }
    return cfg
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    switch os.Getenv(k) {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if dur, err := time.ParseDuration(v); err == nil {
        return dur
    }
    return d
}
