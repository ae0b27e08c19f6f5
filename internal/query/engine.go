// Package query answers read-only questions over the hot cache and the
// historical store. Scans stream through cursors and are aggregated as they
// go; each runs under the configured timeout and row cap. A scan that
// reaches the cap fails with ErrResultTruncated instead of returning a
// partial answer.
package query

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/logging"
	"fleet-monitor/tracker/internal/metrics"
	"fleet-monitor/tracker/internal/store"
)

type StateReader interface {
	GetVehicleState(ctx context.Context, vehicleID string) (domain.VehicleState, error)
	ListAllCurrentStatuses(ctx context.Context) ([]domain.VehicleState, error)
}

type HistoryScanner interface {
	ScanByTimeRange(ctx context.Context, from, to int64, opts store.ScanOptions) (domain.Cursor, error)
	ScanByVehiclePrefix(ctx context.Context, vehicleID string, from int64, to *int64, opts store.ScanOptions) (domain.Cursor, error)
}

type Engine struct {
	state     StateReader
	history   HistoryScanner
	timeout   time.Duration
	scanLimit int
	log       *slog.Logger
}

// NewEngine builds an engine. A zero timeout or scanLimit leaves that bound
// off.
func NewEngine(state StateReader, history HistoryScanner, timeout time.Duration, scanLimit int) *Engine {
	return &Engine{
		state:     state,
		history:   history,
		timeout:   timeout,
		scanLimit: scanLimit,
		log:       logging.Component("query"),
	}
}

func observe(op string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// GetCurrentLocation returns nil location fields for a vehicle that has never
// reported.
func (e *Engine) GetCurrentLocation(ctx context.Context, vehicleID string) (domain.Location, error) {
	defer observe("current_location", time.Now())

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	state, err := e.state.GetVehicleState(ctx, vehicleID)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: current location of %s: %w", domain.ErrQueryFailed, vehicleID, err)
	}
	return state.Location(), nil
}

func (e *Engine) GetAllCurrentStatuses(ctx context.Context) ([]domain.VehicleState, error) {
	defer observe("all_statuses", time.Now())

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	states, err := e.state.ListAllCurrentStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list statuses: %w", domain.ErrQueryFailed, err)
	}
	return states, nil
}

// GetLocationHistory returns the vehicle's samples with from <= ts <= to
// (to == nil means unbounded), ascending by timestamp.
func (e *Engine) GetLocationHistory(ctx context.Context, vehicleID string, from int64, to *int64) ([]domain.PositionSample, error) {
	defer observe("history", time.Now())

	if to != nil && from > *to {
		return nil, fmt.Errorf("%w: from %d is after to %d", domain.ErrInvalidRange, from, *to)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	c, err := e.history.ScanByVehiclePrefix(ctx, vehicleID, from, to, store.ScanOptions{Limit: e.scanLimit})
	if err != nil {
		return nil, fmt.Errorf("%w: history of %s: %w", domain.ErrQueryFailed, vehicleID, err)
	}

	samples := []domain.PositionSample{}
	if err := e.drain(c, func(s domain.PositionSample) {
		samples = append(samples, s)
	}); err != nil {
		return nil, fmt.Errorf("%w: history of %s: %w", domain.ErrQueryFailed, vehicleID, err)
	}

	// Row keys are not chronological across digit-count boundaries.
	slices.SortStableFunc(samples, func(a, b domain.PositionSample) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return samples, nil
}

// GetVehiclePaths groups the samples of [from, to) by vehicle. Vehicles and
// points appear in scan order; points are not re-sorted by time.
func (e *Engine) GetVehiclePaths(ctx context.Context, from, to int64) ([]domain.VehiclePath, error) {
	defer observe("paths", time.Now())

	if from > to {
		return nil, fmt.Errorf("%w: from %d is after to %d", domain.ErrInvalidRange, from, to)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	c, err := e.history.ScanByTimeRange(ctx, from, to, store.ScanOptions{Limit: e.scanLimit})
	if err != nil {
		return nil, fmt.Errorf("%w: paths: %w", domain.ErrQueryFailed, err)
	}

	paths := []domain.VehiclePath{}
	index := make(map[string]int)
	if err := e.drain(c, func(s domain.PositionSample) {
		i, ok := index[s.VehicleID]
		if !ok {
			i = len(paths)
			index[s.VehicleID] = i
			paths = append(paths, domain.VehiclePath{VehicleID: s.VehicleID})
		}
		paths[i].Path = append(paths[i].Path, [2]float64{s.Longitude, s.Latitude})
	}); err != nil {
		return nil, fmt.Errorf("%w: paths: %w", domain.ErrQueryFailed, err)
	}
	return paths, nil
}

// GetHeatmapData counts the samples of [from, to) per grid cell. Cells are
// reported by their lower-left corner, ordered by latitude then longitude.
func (e *Engine) GetHeatmapData(ctx context.Context, from, to int64) ([]domain.HeatCell, error) {
	defer observe("heatmap", time.Now())

	if from > to {
		return nil, fmt.Errorf("%w: from %d is after to %d", domain.ErrInvalidRange, from, to)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	c, err := e.history.ScanByTimeRange(ctx, from, to, store.ScanOptions{Limit: e.scanLimit})
	if err != nil {
		return nil, fmt.Errorf("%w: heatmap: %w", domain.ErrQueryFailed, err)
	}

	density := make(map[[2]float64]int)
	if err := e.drain(c, func(s domain.PositionSample) {
		lat, lng := domain.CellOf(s.Latitude, s.Longitude)
		density[[2]float64{lat, lng}]++
	}); err != nil {
		return nil, fmt.Errorf("%w: heatmap: %w", domain.ErrQueryFailed, err)
	}

	cells := make([]domain.HeatCell, 0, len(density))
	for k, n := range density {
		cells = append(cells, domain.HeatCell{Lat: k[0], Lng: k[1], Density: n})
	}
	slices.SortFunc(cells, func(a, b domain.HeatCell) int {
		if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
			return c
		}
		return cmp.Compare(a.Lng, b.Lng)
	})
	return cells, nil
}

func (e *Engine) drain(c domain.Cursor, fn func(domain.PositionSample)) error {
	defer c.Close()

	n := 0
	for c.Next() {
		fn(c.Sample())
		n++
	}
	if skipped := c.Skipped(); skipped > 0 {
		e.log.Warn("scan skipped malformed rows", "skipped", skipped, "rows", n)
	}
	if err := c.Err(); err != nil {
		return err
	}
	if c.Truncated() {
		return fmt.Errorf("%w: stopped after %d rows", domain.ErrResultTruncated, n)
	}
	return nil
}
