package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/redis/go-redis/v9"
)

// reserveScript is a fixed-window check-and-increment. It either reserves all
// of ARGV[2] or nothing, and returns {granted, remaining}.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local n = tonumber(ARGV[2])
if used + n > limit then
	return {0, limit - used}
end
used = redis.call('INCRBY', KEYS[1], n)
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return {n, limit - used}
`)

// RedisLedger keeps one counter per (company, method, window).
type RedisLedger struct {
	rdb      *redis.Client
	policies Policies
	now      func() time.Time
}

func NewRedisLedger(rdb *redis.Client, policies Policies) *RedisLedger {
	return &RedisLedger{rdb: rdb, policies: policies, now: time.Now}
}

// Reserve grants count sends or returns *QuotaExceededError.
func (l *RedisLedger) Reserve(ctx context.Context, company string, method message.SendMethod, count int) (Reservation, error) {
	pol, ok := l.policies.For(method)
	if !ok {
		return Reservation{Granted: count, Remaining: -1}, nil
	}
	if count <= 0 {
		return Reservation{}, nil
	}

	window := pol.Window.Milliseconds()
	now := l.now().UnixMilli()
	idx := now / window
	resetAt := time.UnixMilli((idx + 1) * window).UTC()
	key := fmt.Sprintf("quota:%s:%s:%d", company, method, idx)
	ttl := (idx+1)*window - now + 1000

	res, err := reserveScript.Run(ctx, l.rdb, []string{key}, pol.Allowance, count, ttl).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("quota reserve: %w", err)
	}
	if len(res) != 2 {
		return Reservation{}, fmt.Errorf("quota reserve: unexpected reply %v", res)
	}

	granted, remaining := int(res[0]), int(max(res[1], 0))
	if granted == 0 {
		return Reservation{}, &QuotaExceededError{
			Method:    method,
			Requested: count,
			Remaining: remaining,
			ResetAt:   resetAt,
		}
	}
	return Reservation{Granted: granted, Remaining: remaining, ResetAt: resetAt}, nil
}

var _ Ledger = (*RedisLedger)(nil)
