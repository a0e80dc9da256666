package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/resibo-ph/resibo/internal/config"
)

const keyDispatchLock = "dispatch:lock:%s:%s"

// DispatchLocker serializes dispatch attempts per receipt and channel
// so two workers cannot send the same notification twice. The lock is
// advisory: when the locker is disabled callers proceed unlocked and
// the store's one-shot status transition remains the hard guarantee.
type DispatchLocker struct {
	enabled bool

	locker *Locker
	ttl    time.Duration
}

func NewDispatchLocker(cfg config.Config) (*DispatchLocker, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("dispatch lock redis addr is required")
	}
	if limitCfg.DispatchLockTTLSeconds <= 0 {
		return nil, errors.New("dispatch lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	return &DispatchLocker{
		enabled: true,
		locker:  NewLocker(client),
		ttl:     time.Duration(limitCfg.DispatchLockTTLSeconds) * time.Second,
	}, nil
}

func (l *DispatchLocker) Enabled() bool {
	return l != nil && l.enabled
}

func (l *DispatchLocker) TryLock(ctx context.Context, receiptID, channel string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(keyDispatchLock, strings.TrimSpace(receiptID), strings.TrimSpace(channel))
	return l.locker.TryLock(ctx, key, l.ttl)
}

func (l *DispatchLocker) Release(ctx context.Context, receiptID, channel, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyDispatchLock, strings.TrimSpace(receiptID), strings.TrimSpace(channel))
	return l.locker.Release(ctx, key, token)
}
