package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"document-backend/internal/shared/server/respond"
	"document-backend/internal/shared/telemetry"
)

const checkTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Service encapsulates health-related checks.
type Service struct {
	names  []string
	checks map[string]CheckFunc
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: map[string]CheckFunc{}}
}

// Add registers a named dependency check.
func (s *Service) Add(name string, check CheckFunc) {
	if _, exists := s.checks[name]; !exists {
		s.names = append(s.names, name)
		sort.Strings(s.names)
	}
	s.checks[name] = check
}

// Status runs every check and returns the failures keyed by name.
func (s *Service) Status(ctx context.Context) (ok bool, failures map[string]string) {
	failures = map[string]string{}
	for _, name := range s.names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](checkCtx)
		cancel()
		if err != nil {
			failures[name] = err.Error()
		}
	}
	return len(failures) == 0, failures
}

// RegisterRoutes exposes GET /health.
func (s *Service) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", s.handle)
}

func (s *Service) handle(c *gin.Context) {
	ok, failures := s.Status(c.Request.Context())
	if !ok {
		telemetry.Warn("health.degraded", map[string]any{"failures": failures})
		respond.JSON(c, http.StatusServiceUnavailable, gin.H{"ok": false, "checks": failures})
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"ok": true})
}
