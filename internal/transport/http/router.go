// Package http exposes the query engine, health, mode and the live feed over
// HTTP. It holds no logic beyond parameter binding and error mapping.
package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-monitor/tracker/internal/broadcast"
	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/logging"
	"fleet-monitor/tracker/internal/metrics"
	"fleet-monitor/tracker/internal/mode"
)

type Queries interface {
	GetCurrentLocation(ctx context.Context, vehicleID string) (domain.Location, error)
	GetAllCurrentStatuses(ctx context.Context) ([]domain.VehicleState, error)
	GetLocationHistory(ctx context.Context, vehicleID string, from int64, to *int64) ([]domain.PositionSample, error)
	GetVehiclePaths(ctx context.Context, from, to int64) ([]domain.VehiclePath, error)
	GetHeatmapData(ctx context.Context, from, to int64) ([]domain.HeatCell, error)
}

type Feed interface {
	Subscribe(sub broadcast.Subscriber) (unsubscribe func())
}

type HealthChecker interface {
	Check(ctx context.Context) map[string]string
}

type Deps struct {
	Queries        Queries
	Feed           Feed
	Health         HealthChecker
	Mode           *mode.Cell
	CORSOrigins    string
	WSWriteTimeout time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	h := &handlers{
		queries:        d.Queries,
		feed:           d.Feed,
		health:         d.Health,
		mode:           d.Mode,
		wsWriteTimeout: d.WSWriteTimeout,
		log:            logging.Component("http"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.log), CORS(d.CORSOrigins))

	vehicles := r.Group("/vehicles")
	vehicles.GET("/status", h.allStatuses)
	vehicles.GET("/:id/location", h.currentLocation)
	vehicles.GET("/:id/history", h.history)

	m := r.Group("/map")
	m.GET("/paths", h.paths)
	m.GET("/heatmap", h.heatmap)

	r.GET("/health", h.checkHealth)
	r.GET("/mode", h.getMode)
	r.POST("/mode", h.setMode)
	r.GET("/ws/vehicles", h.liveFeed)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
