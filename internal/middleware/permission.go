package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"servicemarket/internal/db"
	"servicemarket/internal/metrics"
	"servicemarket/internal/models"
	"servicemarket/internal/services"
	"servicemarket/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GateConfig configures a PermissionGate.
type GateConfig struct {
	// ServiceURL identifies the service the gate protects.
	ServiceURL string
	// OpenPaths bypass the gate. An entry ending in "/*" matches that prefix.
	OpenPaths []string
	// CacheSize bounds the number of cached grants.
	CacheSize int
	// CacheTTL expires cached grants; zero keeps them for the process lifetime.
	CacheTTL time.Duration
}

// PermissionGate admits only callers holding a Permission for one bound service.
//
// The bound service is resolved once (Setup) and kept for the life of the gate. Granted
// addresses are cached, so a permission removed from the store keeps working until its
// cache entry expires or is invalidated.
type PermissionGate struct {
	store db.Store
	auth  services.Authenticator
	cfg   GateConfig
	log   logrus.FieldLogger

	mu      sync.Mutex
	service *models.Service // nil until Setup succeeds

	open     map[string]bool
	prefixes []string
	granted  *utils.ExpiringCache[time.Time]
}

func NewPermissionGate(store db.Store, auth services.Authenticator, cfg GateConfig, log logrus.FieldLogger) (*PermissionGate, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	granted, err := utils.NewExpiringCache[time.Time](cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	g := &PermissionGate{
		store:   store,
		auth:    auth,
		cfg:     cfg,
		log:     log.WithFields(logrus.Fields{"component": "permission_gate", "service_url": cfg.ServiceURL}),
		open:    make(map[string]bool),
		granted: granted,
	}
	for _, p := range cfg.OpenPaths {
		if strings.HasSuffix(p, "/*") {
			g.prefixes = append(g.prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		g.open[p] = true
	}
	return g, nil
}

// Setup resolves the bound service. It is a no-op once the gate is ready and may be
// retried after a failure.
func (g *PermissionGate) Setup(ctx context.Context) error {
	_, err := g.boundService(ctx)
	return err
}

// Ready reports whether the bound service has been resolved.
func (g *PermissionGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.service != nil
}

// Service returns the bound service, or nil before Setup.
func (g *PermissionGate) Service() *models.Service {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.service
}

func (g *PermissionGate) boundService(ctx context.Context) (*models.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.service != nil {
		return g.service, nil
	}

	service, err := g.store.GetServiceByURL(ctx, g.cfg.ServiceURL)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: no service registered with url %q", services.ErrConfiguration, g.cfg.ServiceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve gated service: %w", err)
	}
	g.service = service
	g.log.WithField("service_id", service.ID).Info("permission gate ready")
	return service, nil
}

// IsOpen reports whether p bypasses the gate. Paths that are not in canonical form
// (dot segments, repeated slashes) are never open.
func (g *PermissionGate) IsOpen(p string) bool {
	if !IsCleanPath(p) {
		return false
	}
	if g.open[p] {
		return true
	}
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}

// IsCleanPath reports whether p is already canonical: path.Clean leaves it unchanged,
// apart from a single trailing slash.
func IsCleanPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	cleaned := path.Clean(p)
	if cleaned != "/" && strings.HasSuffix(p, "/") {
		cleaned += "/"
	}
	return cleaned == p
}

// Check authenticates the request and verifies that the caller holds a permission for
// the bound service. It returns the caller's wallet address.
func (g *PermissionGate) Check(ctx context.Context, r *http.Request) (string, error) {
	service, err := g.boundService(ctx)
	if err != nil {
		metrics.RecordGateCheck("error")
		return "", err
	}

	// 认证失败原样返回
	address, err := g.auth.Authenticate(r)
	if err != nil {
		metrics.RecordGateCheck("unauthenticated")
		return "", err
	}
	address = utils.NormalizeAddress(address)

	if _, ok := g.granted.Get(address); ok {
		metrics.RecordGateCheck("cache_hit")
		return address, nil
	}

	_, err = g.store.FindPermission(ctx, address, service.ID)
	if errors.Is(err, db.ErrNotFound) {
		metrics.RecordGateCheck("denied")
		return "", fmt.Errorf("%w: %s has no permission for service %s", services.ErrForbidden, address, service.ID)
	}
	if err != nil {
		metrics.RecordGateCheck("error")
		return "", fmt.Errorf("find permission: %w", err)
	}

	g.granted.Set(address, time.Now())
	metrics.RecordGateCheck("store_hit")
	return address, nil
}

// Invalidate drops address from the grant cache so its next request re-checks the store.
func (g *PermissionGate) Invalidate(address string) {
	g.granted.Delete(utils.NormalizeAddress(address))
}

// InvalidateAll clears the grant cache.
func (g *PermissionGate) InvalidateAll() {
	g.granted.Purge()
}

// Handler returns the gin middleware enforcing the gate on every non-open path.
func (g *PermissionGate) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 上游可能会规范化路径，非规范路径一律拒绝，避免借开放前缀绕过
		if !IsCleanPath(c.Request.URL.Path) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "non-canonical request path"})
			return
		}
		if g.IsOpen(c.Request.URL.Path) {
			c.Next()
			return
		}
		address, err := g.Check(c.Request.Context(), c.Request)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				g.log.WithError(err).Error("permission gate is not configured")
			}
			abortWithError(c, err)
			return
		}
		c.Set(WalletAddressKey, address)
		c.Next()
	}
}
