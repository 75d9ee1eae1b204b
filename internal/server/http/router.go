// Package http exposes the sync API over REST using gin. The error
// mapping mirrors what the agent client classifies: 401 unauthorized,
// 404 not found, 409 version conflict, 422 permanent validation
// failure, 5xx transient.
package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/logging"
)

// DeviceProvider is the device service surface used by the handlers.
type DeviceProvider interface {
	Register(ctx context.Context, deviceName string) (*api.RegisterResponse, error)
	Login(ctx context.Context, deviceID string) (*api.LoginResponse, error)
}

// SyncProvider is the sync service surface used by the handlers.
type SyncProvider interface {
	Push(ctx context.Context, deviceID string, items []api.PushItem) ([]api.PushResult, error)
	Pull(ctx context.Context, sinceVersion int64) (*api.PullResponse, error)
}

// MediaProvider is the media service surface used by the handlers.
type MediaProvider interface {
	ReceiveChunk(ctx context.Context, mediaID string, offset int64, body io.Reader) (*api.ChunkResult, error)
	Complete(ctx context.Context, mediaID string) (*api.ChunkResult, error)
}

// Handlers bundles the services behind the REST surface.
type Handlers struct {
	devices DeviceProvider
	sync    SyncProvider
	media   MediaProvider
	logger  logging.Logger
}

func NewHandlers(devices DeviceProvider, sync SyncProvider, media MediaProvider, logger logging.Logger) *Handlers {
	return &Handlers{devices: devices, sync: sync, media: media, logger: logger}
}

// NewRouter builds the gin engine with all routes registered. Routes
// under /api except device enrollment require a bearer token signed
// with secretKey.
func NewRouter(h *Handlers, secretKey []byte) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.POST("/api/devices/register", h.register)
	r.POST("/api/devices/login", h.login)

	authed := r.Group("/api", AuthMiddleware(secretKey))
	{
		authed.POST("/sync/push", h.push)
		authed.GET("/sync/pull", h.pull)
		authed.PUT("/media/:id/chunks", h.uploadChunk)
		authed.POST("/media/:id/complete", h.completeMedia)
	}

	return r
}
