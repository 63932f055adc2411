package server

import (
	"container/list"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/codepad/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// keyQueryParam carries the API key on WebSocket handshakes, where browsers
// cannot set request headers.
const keyQueryParam = "key"

var (
	errKeyMissing   = errors.New("authentication required")
	errKeyMalformed = errors.New("invalid authorization format, expected Bearer token")
	errKeyInvalid   = errors.New("invalid API key")
)

// listedOrigin matches origin against the configured CORS origins.
func listedOrigin(origins []string, origin string) (ok, wildcard bool) {
	for _, o := range origins {
		if o == "*" {
			return true, true
		}
		if o == origin {
			return true, false
		}
	}
	return false, false
}

// sameOrigin reports whether a browser request comes from a page this server
// served. Requests without an Origin header are not from a browser page.
func sameOrigin(r *http.Request, origins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	ok, _ := listedOrigin(origins, origin)
	return ok
}

// checkAPIKey validates the key presented under headerName. With
// headerName "Authorization" the key is a Bearer token. When allowQuery is
// set the key may also come from the ?key= parameter.
func checkAPIKey(r *http.Request, want, headerName string, allowQuery bool) error {
	token := r.Header.Get(headerName)
	if token != "" && headerName == "Authorization" {
		var ok bool
		if token, ok = strings.CutPrefix(token, "Bearer "); !ok || token == "" {
			return errKeyMalformed
		}
	}
	if token == "" && allowQuery {
		token = r.URL.Query().Get(keyQueryParam)
	}
	if token == "" {
		return errKeyMissing
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		return errKeyInvalid
	}
	return nil
}

// CORSMiddleware answers cross-origin requests from the configured origins.
// With no origins configured it adds nothing. authHeaderName is added to the
// allowed request headers.
func CORSMiddleware(origins []string, authHeaderName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}

		allowHeaders := "Content-Type, Authorization, X-API-Key"
		if authHeaderName != "" && authHeaderName != "Authorization" && authHeaderName != "X-API-Key" {
			allowHeaders += ", " + authHeaderName
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if ok, wildcard := listedOrigin(origins, origin); ok && origin != "" {
				allow := origin
				if wildcard {
					allow = "*"
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware sets the response security headers. The preview
// frame is written in place and inherits this policy, so inline scripts and
// styles are allowed, and so are eval and remote fetches from user code.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	const csp = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: blob: https:; " +
		"font-src 'self' data: https:; " +
		"connect-src 'self' https:; " +
		"frame-ancestors 'self'"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

const (
	limiterIdle         = 10 * time.Minute
	limiterSweep        = 5 * time.Minute
	evictionLogInterval = 30 * time.Second
)

type ipLimiter struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client IP. When full, the least
// recently used IP is evicted to make room.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	max     int
	byIP    map[string]*list.Element
	recency *list.List // front is most recently used

	evicted int
	lastLog time.Time
	logger  *zap.Logger
}

func newLimiterSet(rps float64, burst, maxIPs int, logger *zap.Logger) *limiterSet {
	return &limiterSet{
		limit:   rate.Limit(rps),
		burst:   burst,
		max:     maxIPs,
		byIP:    make(map[string]*list.Element),
		recency: list.New(),
		logger:  logger,
	}
}

func (s *limiterSet) allow(ip string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.byIP[ip]; ok {
		s.recency.MoveToFront(elem)
		lim := elem.Value.(*ipLimiter)
		lim.lastSeen = now
		return lim.limiter.AllowN(now, 1)
	}

	if s.recency.Len() >= s.max {
		s.evictOldest(now)
	}
	lim := &ipLimiter{ip: ip, limiter: rate.NewLimiter(s.limit, s.burst), lastSeen: now}
	s.byIP[ip] = s.recency.PushFront(lim)
	return lim.limiter.AllowN(now, 1)
}

func (s *limiterSet) evictOldest(now time.Time) {
	back := s.recency.Back()
	if back == nil {
		return
	}
	s.recency.Remove(back)
	delete(s.byIP, back.Value.(*ipLimiter).ip)

	s.evicted++
	if now.Sub(s.lastLog) >= evictionLogInterval {
		s.logger.Info("evicted least-recent IPs", zap.Int("evicted", s.evicted), zap.Int("capacity", s.max))
		s.lastLog = now
		s.evicted = 0
	}
}

// sweep drops limiters idle for longer than idle. Recency order follows
// access, so the whole list is scanned.
func (s *limiterSet) sweep(now time.Time, idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.recency.Back(); e != nil; {
		prev := e.Prev()
		if lim := e.Value.(*ipLimiter); now.Sub(lim.lastSeen) > idle {
			s.recency.Remove(e)
			delete(s.byIP, lim.ip)
		}
		e = prev
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recency.Len()
}

// RateLimitMiddleware limits API requests per client IP with a token bucket
// of rps and burst, tracking at most maxIPs clients. Editor traffic goes over
// the WebSocket and is not limited.
//
// Idle limiters are swept in a goroutine that runs until ctx is cancelled;
// the returned channel is closed when it exits.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int, logger *zap.Logger) (func(http.Handler) http.Handler, <-chan struct{}) {
	if maxIPs <= 0 {
		maxIPs = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	set := newLimiterSet(rps, burst, maxIPs, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				set.sweep(now, limiterIdle)
			case <-ctx.Done():
				return
			}
		}
	}()

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set.allow(getClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return mw, done
}

// getClientIP returns the client address. Forwarding headers are trusted
// only from loopback or private peers.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peer := net.ParseIP(host)
	if peer == nil {
		return host
	}
	if peer.IsLoopback() || peer.IsPrivate() {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	return peer.String()
}

// AuthMiddleware requires the configured API key. Without a key every
// request passes; CORS preflights always pass.
func AuthMiddleware(authCfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		apiKey := authCfg.GetAPIKey()
		if apiKey == "" {
			return next
		}
		headerName := authCfg.GetHeaderName()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if err := checkAPIKey(r, apiKey, headerName, false); err != nil {
				writeJSONError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
