package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "docent-tagalong/internal/transport/http/response"
)

// RateLimit 全局令牌桶限速
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		resp.Abort(c, resp.CodeTooManyRequests, "too many requests")
	}
}

// RateLimitPerIP 每 IP 限速（登录、找回密码等公开接口）
func RateLimitPerIP(rps rate.Limit, burst int) gin.HandlerFunc {
	ips := newIPLimiter(rps, burst, 10*time.Minute, 10000)
	return func(c *gin.Context) {
		if ips.allow(c.ClientIP()) {
			c.Next()
			return
		}
		resp.Abort(c, resp.CodeTooManyRequests, "too many requests")
	}
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipLimiter 空闲超过 idle 的桶会被清掉；桶数到 max 时淘汰最久未访问的
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	rps       rate.Limit
	burst     int
	idle      time.Duration
	max       int
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(rps rate.Limit, burst int, idle time.Duration, max int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		rps:     rps,
		burst:   burst,
		idle:    idle,
		max:     max,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle/2 {
		l.sweep(now)
	}
	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= l.max {
			l.evictOldest()
		}
		b = &ipBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

func (l *ipLimiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
	)
	for ip, b := range l.buckets {
		if oldest == "" || b.seen.Before(seen) {
			oldest, seen = ip, b.seen
		}
	}
	delete(l.buckets, oldest)
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
