package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fleet-monitor/tracker/internal/broadcast"
	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/health"
	"fleet-monitor/tracker/internal/mode"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type handlers struct {
	queries        Queries
	feed           Feed
	health         HealthChecker
	mode           *mode.Cell
	wsWriteTimeout time.Duration
	log            *slog.Logger
}

func (h *handlers) currentLocation(c *gin.Context) {
	loc, err := h.queries.GetCurrentLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *handlers) allStatuses(c *gin.Context) {
	states, err := h.queries.GetAllCurrentStatuses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, states)
}

func (h *handlers) history(c *gin.Context) {
	from, err := requiredInt(c, "from")
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := optionalInt(c, "to")
	if err != nil {
		badRequest(c, err)
		return
	}

	samples, err := h.queries.GetLocationHistory(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, samples)
}

func (h *handlers) paths(c *gin.Context) {
	from, to, ok := rangeParams(c)
	if !ok {
		return
	}
	paths, err := h.queries.GetVehiclePaths(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, paths)
}

func (h *handlers) heatmap(c *gin.Context) {
	from, to, ok := rangeParams(c)
	if !ok {
		return
	}
	cells, err := h.queries.GetHeatmapData(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cells)
}

func (h *handlers) checkHealth(c *gin.Context) {
	statuses := h.health.Check(c.Request.Context())
	code := http.StatusOK
	if !health.Healthy(statuses) {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, statuses)
}

func (h *handlers) getMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.mode.Get()})
}

func (h *handlers) setMode(c *gin.Context) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.mode.Set(body.Mode)
	if err != nil {
		badRequest(c, err)
		return
	}
	h.log.Info("mode changed", "mode", m)
	c.JSON(http.StatusOK, gin.H{"mode": m})
}

func (h *handlers) liveFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := broadcast.NewWSClient(conn, h.wsWriteTimeout)
	unsubscribe := h.feed.Subscribe(client)
	defer unsubscribe()

	client.ReadUntilClosed()
}

// fail maps engine errors to status codes.
func (h *handlers) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrResultTruncated):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "result exceeds scan limit, narrow the time range"})
	case errors.Is(err, domain.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func requiredInt(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be an integer", name)
	}
	return n, nil
}

func optionalInt(c *gin.Context, name string) (*int64, error) {
	if c.Query(name) == "" {
		return nil, nil
	}
	n, err := requiredInt(c, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func rangeParams(c *gin.Context) (from, to int64, ok bool) {
	from, err := requiredInt(c, "from")
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	to, err = requiredInt(c, "to")
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	return from, to, true
}
