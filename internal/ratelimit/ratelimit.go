// Package ratelimit はRedisカウンターによる固定ウィンドウのレート制限を提供します。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter はツール種別ごとに1分あたりの投入回数を制限します。
// ウィンドウは分単位の固定境界で、カウンターキーは自動的に失効します。
type Limiter struct {
	rdb    *redis.Client
	limits map[string]int
	now    func() time.Time
}

// NewLimiter は Limiter を作成します。limits はツール名から1分あたりの上限への対応表です。
func NewLimiter(rdb *redis.Client, limits map[string]int) (*Limiter, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Limiter{
		rdb:    rdb,
		limits: limits,
		now:    time.Now,
	}, nil
}

// Allow は tool の現在ウィンドウのカウンターを進め、上限以内なら true を返します。
// 上限が設定されていないツールは常に許可します。
func (l *Limiter) Allow(ctx context.Context, tool string) (bool, error) {
	limit, ok := l.limits[tool]
	if !ok || limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", tool, l.now().UTC().Format("200601021504"))

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() <= int64(limit), nil
}
