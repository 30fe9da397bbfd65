package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cafepos/internal/core"
)

// ReportCache serves daily financial reports for past dates without hitting
// the database. A past date's report is immutable once the day is over, so
// entries carry a long TTL; today's report is never cached.
type ReportCache interface {
	Get(ctx context.Context, reportDate string) (*core.DailyFinancialReport, bool, error)
	Set(ctx context.Context, report *core.DailyFinancialReport, ttl time.Duration) error
	Invalidate(ctx context.Context, reportDate string) error
}

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func reportKey(reportDate string) string {
	return fmt.Sprintf("daily_report:%s", reportDate)
}

func (c *RedisReportCache) Get(ctx context.Context, reportDate string) (*core.DailyFinancialReport, bool, error) {
	val, err := c.client.Get(ctx, reportKey(reportDate)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report core.DailyFinancialReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, report *core.DailyFinancialReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey(report.ReportDate), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context, reportDate string) error {
	return c.client.Del(ctx, reportKey(reportDate)).Err()
}

// NopReportCache is used when no redis address is configured.
type NopReportCache struct{}

func (NopReportCache) Get(context.Context, string) (*core.DailyFinancialReport, bool, error) {
	return nil, false, nil
}

func (NopReportCache) Set(context.Context, *core.DailyFinancialReport, time.Duration) error {
	return nil
}

func (NopReportCache) Invalidate(context.Context, string) error { return nil }
