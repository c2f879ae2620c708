package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/vendalink/leadrouter/internal/config"
)

// WorkspaceAuthConfig controls workspace authentication behavior.
type WorkspaceAuthConfig struct {
	// Enabled reports whether authentication is enforced. When it returns
	// false, credentials are checked but not required (grace period mode).
	Enabled func() bool

	// Logger for authentication events.
	Logger *slog.Logger
}

// WorkspaceAuthMiddleware creates middleware that validates workspace API keys.
// During the grace period, it logs but doesn't reject unauthenticated requests.
func (s *Server) WorkspaceAuthMiddleware(cfg WorkspaceAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enforced := cfg.Enabled()
			workspaceID := requestWorkspaceID(r)
			authHeader := r.Header.Get("Authorization")

			if workspaceID == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				if enforced {
					cfg.Logger.Warn("workspace auth failed: missing credentials",
						"path", r.URL.Path,
						"workspace_id", workspaceID,
						"has_auth_header", authHeader != "",
					)
					http.Error(w, "unauthorized: missing credentials", http.StatusUnauthorized)
					return
				}
				// Grace period: log but allow
				cfg.Logger.Debug("workspace auth: missing credentials (grace period)",
					"path", r.URL.Path,
					"workspace_id", workspaceID,
				)
				next.ServeHTTP(w, r)
				return
			}

			apiKey := strings.TrimPrefix(authHeader, "Bearer ")

			expectedHash, err := s.svc.Store().GetWorkspaceAPIKeyHash(r.Context(), workspaceID)
			if err != nil {
				cfg.Logger.Error("workspace auth failed: database error",
					"workspace_id", workspaceID,
					"error", err,
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			// No key set for this workspace
			if expectedHash == "" {
				if enforced {
					cfg.Logger.Warn("workspace auth failed: no API key configured",
						"workspace_id", workspaceID,
						"path", r.URL.Path,
					)
					http.Error(w, "unauthorized: no API key configured", http.StatusUnauthorized)
					return
				}
				cfg.Logger.Debug("workspace auth: no API key configured (grace period)",
					"workspace_id", workspaceID,
				)
				next.ServeHTTP(w, r)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(expectedHash), []byte(apiKey)); err != nil {
				if enforced {
					cfg.Logger.Warn("workspace auth failed: invalid API key",
						"workspace_id", workspaceID,
						"path", r.URL.Path,
					)
					http.Error(w, "unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				cfg.Logger.Warn("workspace auth: invalid API key (grace period - would reject)",
					"workspace_id", workspaceID,
				)
				next.ServeHTTP(w, r)
				return
			}

			cfg.Logger.Debug("workspace auth successful",
				"workspace_id", workspaceID,
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r)
		})
	}
}

// requestWorkspaceID extracts the workspace ID from the header, path, or,
// for lead intake, nowhere (intake carries it in the body; the header is
// required there).
func requestWorkspaceID(r *http.Request) string {
	if id := r.Header.Get("X-Workspace-ID"); id != "" {
		return id
	}
	return r.PathValue("id")
}

// ingestLimiter rate limits lead intake per workspace so one noisy webhook
// integration cannot starve the others.
type ingestLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIngestLimiter() *ingestLimiter {
	return &ingestLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(config.DefaultIngestRatePerSecond),
		burst:    config.DefaultIngestBurst,
	}
}

// SetRate replaces the per-workspace rate applied to limiters created after
// the call.
func (l *ingestLimiter) SetRate(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rate.Limit(rps)
	l.burst = burst
	l.limiters = make(map[string]*rate.Limiter)
}

func (l *ingestLimiter) allow(workspaceID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[workspaceID]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[workspaceID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// SetIngestRate configures the per-workspace intake rate limit.
func (s *Server) SetIngestRate(rps float64, burst int) {
	s.limiter.SetRate(rps, burst)
}

// rateLimited wraps a handler with the per-workspace intake limiter. The
// workspace key falls back to the remote address when no ID is present, so
// unidentified traffic is still bounded.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := requestWorkspaceID(r)
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.limiter.allow(key) {
			s.logger.Warn("lead intake rate limited", "workspace_id", key, "path", r.URL.Path)
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(w, r)
	}
}

// wrapHandler converts an http.HandlerFunc to use middleware.
func wrapHandler(h http.HandlerFunc, middleware func(http.Handler) http.Handler) http.HandlerFunc {
	return middleware(h).ServeHTTP
}
