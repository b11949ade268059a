package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nexusdrive/internal/server/service"
	"nexusdrive/internal/server/session"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	ctxSession = "session"
	ctxAuth    = "auth"
)

// Auth is the access level of the current request, resolved once from the
// session store by SessionMiddleware.
type Auth struct {
	Verified bool
	Admin    bool
}

func authFrom(c echo.Context) Auth {
	a, _ := c.Get(ctxAuth).(Auth)
	return a
}

func sessionFrom(c echo.Context) *session.Session {
	s, _ := c.Get(ctxSession).(*session.Session)
	return s
}

// SessionMiddleware loads the browser's session and stores it, together with
// the derived Auth, on the echo context.
func SessionMiddleware(m *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := m.Load(c.Request().Context(), c.Request())
			c.Set(ctxSession, s)
			c.Set(ctxAuth, Auth{Verified: s.Verified, Admin: s.Admin})
			return next(c)
		}
	}
}

// RequireVerified sends visitors without general access to the login prompt,
// remembering where they were headed.
func RequireVerified() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authFrom(c).Verified {
				return redirectToLogin(c, "/login")
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects requests without administrative access. JSON callers
// get a 403 payload; page requests are sent to the admin login prompt.
func RequireAdmin(jsonOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authFrom(c).Admin {
				return next(c)
			}
			if jsonOnly || wantsJSON(c) {
				return mapServiceError(c, service.ErrForbidden)
			}
			return redirectToLogin(c, "/admin/login")
		}
	}
}

func redirectToLogin(c echo.Context, loginPath string) error {
	next := c.Request().URL.RequestURI()
	return c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(next))
}

func wantsJSON(c echo.Context) bool {
	req := c.Request()
	return strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) ||
		strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// clientIP prefers the Cloudflare header, then the first X-Forwarded-For hop,
// then the socket peer.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get(echo.HeaderXForwardedFor); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func actorFrom(c echo.Context) service.Actor {
	req := c.Request()
	return service.Actor{
		IP:          clientIP(req),
		UserAgent:   req.UserAgent(),
		ForceMobile: c.QueryParam("view") == "mobile",
	}
}

// visitor tracks the rate limit state for a single IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token-bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	stop     chan struct{}
}

// NewRateLimiter creates a rate limiter with the given rate (requests/sec) and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		stop:     make(chan struct{}),
	}

	// Clean up stale entries every 5 minutes
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

// Middleware returns an echo middleware function that enforces rate limits.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := clientIP(c.Request())
			if !rl.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", c.Request().URL.Path)
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error": "too many attempts, try again later",
				})
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// RequestLogger returns an echo middleware that logs requests using slog.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			slog.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", clientIP(req),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
			)

			return nil
		}
	}
}
