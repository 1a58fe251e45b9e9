package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/curricula/internal/models"
)

// CourseCache is a read-through cache of course outlines kept in Redis.
//
// Cache failures are logged and treated as misses; the database stays the source of truth.
type CourseCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCourseCache creates a new CourseCache whose entries expire after ttl
func NewCourseCache(rdb *redis.Client, ttl time.Duration, logger *log.Logger) *CourseCache {
	return &CourseCache{rdb: rdb, ttl: ttl, logger: logger}
}

// CourseCacheKey returns the Redis key of a course outline. Ids are folded to lower case.
func CourseCacheKey(courseID string) string {
	return "course:outline:" + strings.ToLower(courseID)
}

// CourseGenerationKey returns the Redis key of the counter bumped by every invalidation of a course.
func CourseGenerationKey(courseID string) string {
	return "course:generation:" + strings.ToLower(courseID)
}

// setIfGeneration stores ARGV[2] under KEYS[2] only while KEYS[1] still holds ARGV[1].
// ARGV[3] is the expiry in milliseconds, 0 for none.
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// Get returns the cached outline of a course, if any
func (c *CourseCache) Get(ctx context.Context, courseID string) (*models.CourseOutline, bool) {
	val, err := c.rdb.Get(ctx, CourseCacheKey(courseID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("course cache read failed", "course_id", courseID, "error", err)
		}
		return nil, false
	}

	var outline models.CourseOutline
	if err := json.Unmarshal(val, &outline); err != nil {
		c.logger.Warn("discarding malformed course cache entry", "course_id", courseID, "error", err)
		return nil, false
	}
	return &outline, true
}

// Generation returns the invalidation counter of a course. ok is false when it cannot be read,
// in which case nothing read afterwards should be cached.
func (c *CourseCache) Generation(ctx context.Context, courseID string) (gen int64, ok bool) {
	gen, err := c.rdb.Get(ctx, CourseGenerationKey(courseID)).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		c.logger.Warn("course cache generation read failed", "course_id", courseID, "error", err)
		return 0, false
	}
	return gen, true
}

// Set stores an outline under its course id, unless the course was invalidated since gen was read.
func (c *CourseCache) Set(ctx context.Context, outline *models.CourseOutline, gen int64) {
	if outline == nil || outline.Course == nil {
		return
	}

	data, err := json.Marshal(outline)
	if err != nil {
		c.logger.Warn("failed to encode course outline", "course_id", outline.Course.ID, "error", err)
		return
	}

	id := outline.Course.ID
	keys := []string{CourseGenerationKey(id), CourseCacheKey(id)}
	stored, err := setIfGeneration.Run(ctx, c.rdb, keys, gen, data, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn("course cache write failed", "course_id", id, "error", err)
		return
	}
	if stored == 0 {
		c.logger.Debug("skipping stale course outline", "course_id", id, "generation", gen)
	}
}

// Invalidate drops the cached outlines of the given courses and bumps their generations
func (c *CourseCache) Invalidate(ctx context.Context, courseIDs ...string) {
	if len(courseIDs) == 0 {
		return
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range courseIDs {
			pipe.Incr(ctx, CourseGenerationKey(id))
			pipe.Del(ctx, CourseCacheKey(id))
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("course cache invalidation failed", "courses", courseIDs, "error", err)
	}
}
