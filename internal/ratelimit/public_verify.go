package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/resibo-ph/resibo/internal/config"
)

const (
	keyPublicVerifyClient = "verify:public:client:%s"
	keyPublicVerifyNumber = "verify:public:number:%s"
)

// PublicVerifyLimiter throttles the unauthenticated verification
// endpoint. Two buckets apply per request: one per calling address and
// one per probed receipt number, so neither a single scanner nor a
// hammered number can exhaust the endpoint.
type PublicVerifyLimiter struct {
	enabled bool

	bucket *TokenBucket

	clientRate  float64
	clientBurst int
	numberRate  float64
	numberBurst int
}

func NewPublicVerifyLimiter(cfg config.Config) (*PublicVerifyLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.PublicVerifyClientRate <= 0 || limitCfg.PublicVerifyClientBurst <= 0 {
		return nil, errors.New("public verify client rate limit must be positive")
	}
	if limitCfg.PublicVerifyNumberRate <= 0 || limitCfg.PublicVerifyNumberBurst <= 0 {
		return nil, errors.New("public verify number rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	return &PublicVerifyLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		clientRate:  limitCfg.PublicVerifyClientRate,
		clientBurst: limitCfg.PublicVerifyClientBurst,
		numberRate:  limitCfg.PublicVerifyNumberRate,
		numberBurst: limitCfg.PublicVerifyNumberBurst,
	}, nil
}

func (l *PublicVerifyLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PublicVerifyLimiter) AllowClient(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPublicVerifyClient, strings.TrimSpace(clientIP)), l.clientRate, l.clientBurst)
}

func (l *PublicVerifyLimiter) AllowNumber(ctx context.Context, receiptNumber string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPublicVerifyNumber, strings.TrimSpace(receiptNumber)), l.numberRate, l.numberBurst)
}
