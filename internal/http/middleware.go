package http

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/kptumpala/inkpost/internal/store"
)

// loadCurrentUser resolves the session's user id into a User once per request
// and stashes it on the gin context. Handlers never look the identity up
// again; a stale session entry is cleared.
func (e *Env) loadCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		if v := sess.Get(sessionUserKey); v != nil {
			if id, ok := v.(uint); ok {
				u, err := e.Store.UserByID(c.Request.Context(), id)
				switch {
				case err == nil:
					c.Set(ctxUserKey, u)
				case errors.Is(err, store.ErrNotFound):
					sess.Delete(sessionUserKey)
					_ = sess.Save()
				}
			}
		}
		c.Next()
	}
}

// RequireAuth redirects anonymous callers to the login page with a flash
// message instead of rejecting them outright.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUser(c); !ok {
			addFlash(c, "You need to log in or register to do that.")
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects any authenticated non-admin identity with 403. It must
// run after RequireAuth so anonymous callers get the login redirect first.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := currentUser(c)
		if !ok || !u.IsAdmin {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds basic, sensible security headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		// Post image URLs and Gravatar avatars come from arbitrary hosts, so
		// img-src stays open to https.
		csp := "default-src 'self';"
		csp += " img-src 'self' https:;"
		csp += " style-src 'self' 'unsafe-inline';"
		csp += " connect-src 'self' ws: wss:;"
		c.Header("Content-Security-Policy", csp)
		c.Next()
	}
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    b,
	}
}

func (rl *IPRateLimiter) Get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.visitors[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

// RateLimit guards credential and mail endpoints from hammering.
func RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Get(c.ClientIP()).Allow() {
			c.String(http.StatusTooManyRequests, "Too many requests. Please wait.")
			c.Abort()
			return
		}
		c.Next()
	}
}
