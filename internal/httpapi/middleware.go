package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"datanest-backend/internal/auth"
	"datanest-backend/internal/metrics"
	"datanest-backend/internal/model"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, user model.User)

// authed resolves the bearer token before calling h. Requests without a
// valid token get 401.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeStatus(w, r, http.StatusUnauthorized, "unauthenticated", "access token required")
			return
		}
		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				log.Errorw("authenticating request", "path", r.URL.Path, "error", err)
			}
			writeStatus(w, r, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
			return
		}
		h(w, r, user)
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument counts responses by route template and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sr, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tmpl, err := cr.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTP.Requests.WithLabelValues(route, strconv.Itoa(sr.code)).Inc()
	})
}

const maxTrackedClients = 10000

// RateLimiter throttles each client host to limit requests per second.
type RateLimiter struct {
	next  http.Handler
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// NewRateLimiter wraps next. A limit of 0 disables throttling.
func NewRateLimiter(next http.Handler, limit float64, burst int) *RateLimiter {
	l := rate.Inf
	if limit > 0 {
		l = rate.Limit(limit)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{next: next, limit: l, burst: burst, clients: make(map[string]*rate.Limiter)}
}

func (h *RateLimiter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limit != rate.Inf && !h.limiter(clientHost(r)).Allow() {
		metrics.HTTP.RateLimited.Inc()
		writeStatus(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}
	h.next.ServeHTTP(w, r)
}

func (h *RateLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.clients[host]
	if !ok {
		if len(h.clients) >= maxTrackedClients {
			h.clients = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(h.limit, h.burst)
		h.clients[host] = l
	}
	return l
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
