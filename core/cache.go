package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sabbir-lite-0/repolens/utils"
)

const (
	cacheKeyPrefix = "repolens:report:"
	recentListKey  = "repolens:reports:recent"
	recentListCap  = 20
)

// ReportCache stores composite reports in redis so repeat analyses of the
// same repository skip the model entirely until the TTL expires.
type ReportCache struct {
	redisClient *redis.Client
	logger      *utils.Logger
	ttl         time.Duration
}

// NewReportCache connects to redis. Returns nil when the URL is bad or the
// server unreachable; callers treat a nil cache as "caching disabled".
func NewReportCache(redisURL string, ttl time.Duration, logger *utils.Logger) *ReportCache {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("Failed to parse redis URL: %v", err)
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to redis: %v", err)
		return nil
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &ReportCache{
		redisClient: client,
		logger:      logger,
		ttl:         ttl,
	}
}

func cacheKey(owner, repo string) string {
	return cacheKeyPrefix + strings.ToLower(owner+"/"+repo)
}

// Get returns the cached report for owner/repo when present and decodable.
func (c *ReportCache) Get(ctx context.Context, owner, repo string) (CompositeReport, bool) {
	data, err := c.redisClient.Get(ctx, cacheKey(owner, repo)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Report cache lookup failed: %v", err)
		}
		return CompositeReport{}, false
	}

	var report CompositeReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		c.logger.Debug("Discarding undecodable cached report for %s/%s: %v", owner, repo, err)
		return CompositeReport{}, false
	}

	return report, true
}

// Put stores a report with the configured TTL and records it on the
// recent-analyses list. Fallback reports are never cached.
func (c *ReportCache) Put(ctx context.Context, report CompositeReport) error {
	if report.Fallback {
		return nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %v", err)
	}

	key := cacheKey(report.Repo.Owner, report.Repo.Name)
	if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store report: %v", err)
	}

	entry := fmt.Sprintf("%s|%d|%s", report.Repository, report.OverallScore, report.GeneratedAt.Format(time.RFC3339))
	pipe := c.redisClient.Pipeline()
	pipe.LPush(ctx, recentListKey, entry)
	pipe.LTrim(ctx, recentListKey, 0, recentListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("Recent-analyses list update failed: %v", err)
	}

	return nil
}

// Recent returns the newest entries of the recent-analyses list.
func (c *ReportCache) Recent(ctx context.Context, n int) []string {
	if n <= 0 || n > recentListCap {
		n = recentListCap
	}
	entries, err := c.redisClient.LRange(ctx, recentListKey, 0, int64(n-1)).Result()
	if err != nil {
		c.logger.Debug("Recent-analyses list read failed: %v", err)
		return nil
	}
	return entries
}

// Invalidate drops the cached report for owner/repo.
func (c *ReportCache) Invalidate(ctx context.Context, owner, repo string) {
	if err := c.redisClient.Del(ctx, cacheKey(owner, repo)).Err(); err != nil {
		c.logger.Debug("Report cache invalidation failed: %v", err)
	}
}
