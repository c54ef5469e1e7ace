package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type SeenToucher interface {
	TouchUserSeen(ctx context.Context, userID string) error
}

// TouchLastSeen updates users.last_seen_at at most once per throttle window per
// user. The window is a Redis SETNX key; failures never block the request.
func TouchLastSeen(users SeenToucher, rdb redis.Cmdable, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := CurrentUserID(c)
		if uid == "" {
			c.Next()
			return
		}

		key := "toolhub:user:lastseen:" + uid
		if ok, _ := rdb.SetNX(c, key, "1", throttle).Result(); ok {
			_ = users.TouchUserSeen(c, uid)
		}
		c.Next()
	}
}
