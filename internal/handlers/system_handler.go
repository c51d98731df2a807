package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"ticket-issuer/config"
	"ticket-issuer/utils"
)

type SystemHandler struct {
	cfg   *config.Config
	redis *redis.Client // nil when no Redis is configured
	now   func() time.Time
}

func NewSystemHandler(cfg *config.Config, redisClient *redis.Client) *SystemHandler {
	return &SystemHandler{
		cfg:   cfg,
		redis: redisClient,
		now:   time.Now,
	}
}

// Health - GET /api/health
func (h *SystemHandler) Health(e *core.RequestEvent) error {
	now := h.now().UTC().Format("2006-01-02T15:04:05.000Z")

	if h.redis != nil {
		if err := utils.RedisHealthCheck(e.Request.Context(), h.redis); err != nil {
			return e.JSON(http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"time":  now,
				"error": "redis unavailable",
			})
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"ok": true, "time": now})
}

// Config - GET /api/config
func (h *SystemHandler) Config(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, h.cfg.Public())
}
