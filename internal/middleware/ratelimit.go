package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"shopcore/pkg/cache"
)

// luaRateLimit implements a sliding-window limiter in one atomic Redis
// script. KEYS[1]=window key, ARGV: now, window start, window seconds,
// member, limit. Returns the count inside the window, or -1 when the
// request would exceed the limit.
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RedisRateLimit limits write-path routes per user, falling back to
// per-IP when no principal header is present. Redis being unreachable
// fails open: losing the limiter must not take the order path down.
func RedisRateLimit(rdb *rd.Client, route string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if userID, err := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64); err == nil && userID > 0 {
			key = cache.RateLimitUserKey(route, userID)
		} else {
			key = cache.RateLimitIPKey(route, c.ClientIP())
		}

		now := time.Now().Unix()
		windowSec := int64(window.Seconds())
		windowStart := now - windowSec
		member := fmt.Sprintf("%d-%d", now, time.Now().UnixNano())

		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			now, windowStart, windowSec, member, limit).Int()
		if err != nil {
			c.Next()
			return
		}

		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
