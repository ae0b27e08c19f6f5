package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-monitor/tracker/internal/config"
	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/logging"
)

// pgxPool is the subset of *pgxpool.Pool the historical store uses. Every call
// acquires a pooled connection and returns it when the command (or, for
// Query, the rows) completes.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// HistoryStore holds append-only position samples in a table shaped like a
// wide-column store: a text row key and two attribute groups, "loc" and
// "stat", each stored as JSONB with its own cell timestamp in milliseconds.
type HistoryStore struct {
	pool pgxPool
	log  *slog.Logger

	upsertSQL    string
	timeRangeSQL string
	prefixSQL    string
	openPrefix   string
}

// ScanOptions bounds a scan. Limit caps the number of samples a cursor
// yields; zero means no cap. A cursor that stops at the cap with rows left
// reports Truncated.
type ScanOptions struct {
	Limit int
}

func NewHistoryStore(ctx context.Context, cfg *config.Config) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping db: %w", domain.ErrStoreUnavailable, err)
	}

	return NewHistoryStoreWithPool(pool, cfg.HistoryTable), nil
}

func NewHistoryStoreWithPool(pool pgxPool, table string) *HistoryStore {
	t := pgx.Identifier{table}.Sanitize()
	return &HistoryStore{
		pool: pool,
		log:  logging.Component("history"),
		upsertSQL: fmt.Sprintf(`
		INSERT INTO %s (row_key, loc, loc_ts, stat, stat_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (row_key) DO UPDATE SET
			loc = EXCLUDED.loc,
			loc_ts = EXCLUDED.loc_ts,
			stat = EXCLUDED.stat,
			stat_ts = EXCLUDED.stat_ts
	`, t),
		timeRangeSQL: fmt.Sprintf(`
		SELECT row_key, COALESCE(loc::text, '')
		FROM %s
		WHERE loc_ts >= $1 AND loc_ts < $2
		ORDER BY row_key
	`, t),
		prefixSQL: fmt.Sprintf(`
		SELECT row_key, COALESCE(loc::text, ''), COALESCE(stat::text, '')
		FROM %s
		WHERE row_key >= $1 AND row_key < $2
		ORDER BY length(row_key), row_key
	`, t),
		openPrefix: fmt.Sprintf(`
		SELECT row_key, COALESCE(loc::text, ''), COALESCE(stat::text, '')
		FROM %s
		WHERE row_key >= $1
		ORDER BY length(row_key), row_key
	`, t),
	}
}

func (h *HistoryStore) Close() {
	h.pool.Close()
}

func (h *HistoryStore) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

type locGroup struct {
	Lat *flexFloat `json:"lat"`
	Lon *flexFloat `json:"lon"`
}

type statGroup struct {
	Speed *flexFloat `json:"speed"`
}

func sampleArgs(s domain.PositionSample) ([]any, error) {
	lat, lon, speed := flexFloat(s.Latitude), flexFloat(s.Longitude), flexFloat(s.Speed)
	loc, err := json.Marshal(locGroup{Lat: &lat, Lon: &lon})
	if err != nil {
		return nil, fmt.Errorf("marshal loc group: %w", err)
	}
	stat, err := json.Marshal(statGroup{Speed: &speed})
	if err != nil {
		return nil, fmt.Errorf("marshal stat group: %w", err)
	}
	cellTS := s.Timestamp * 1000
	return []any{RowKey(s.VehicleID, s.Timestamp), string(loc), cellTS, string(stat), cellTS}, nil
}

// AppendSample writes one row; an existing row with the same key is
// overwritten, as a put on the same cell would be.
func (h *HistoryStore) AppendSample(ctx context.Context, s domain.PositionSample) error {
	args, err := sampleArgs(s)
	if err != nil {
		return err
	}
	if _, err := h.pool.Exec(ctx, h.upsertSQL, args...); err != nil {
		return fmt.Errorf("%w: append %s: %w", domain.ErrStoreUnavailable, args[0], err)
	}
	return nil
}

func (h *HistoryStore) AppendBatch(ctx context.Context, samples []domain.PositionSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range samples {
		args, err := sampleArgs(s)
		if err != nil {
			return err
		}
		batch.Queue(h.upsertSQL, args...)
	}

	br := h.pool.SendBatch(ctx, batch)
	for range samples {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%w: batch append of %d: %w", domain.ErrStoreUnavailable, len(samples), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: batch append of %d: %w", domain.ErrStoreUnavailable, len(samples), err)
	}
	return nil
}

// ScanByTimeRange streams every row whose location cell timestamp falls in
// [from*1000, to*1000), reading the location group only. Rows come back in
// row-key byte order.
func (h *HistoryStore) ScanByTimeRange(ctx context.Context, from, to int64, opts ScanOptions) (domain.Cursor, error) {
	rows, err := h.pool.Query(ctx, h.timeRangeSQL, from*1000, to*1000)
	if err != nil {
		return nil, fmt.Errorf("%w: time range scan: %w", domain.ErrStoreUnavailable, err)
	}
	return newRowCursor(rows, decodeLocationRow, nil, opts.Limit, h.log), nil
}

// ScanByVehiclePrefix streams the vehicle's rows with from <= ts and, when to
// is set, ts <= to. Both attribute groups are read. Keys under one prefix
// differ only in their timestamp digits, so ordering by key length first
// yields chronological order and a capped scan keeps the earliest samples.
func (h *HistoryStore) ScanByVehiclePrefix(ctx context.Context, vehicleID string, from int64, to *int64, opts ScanOptions) (domain.Cursor, error) {
	prefix := RowPrefix(vehicleID)

	var (
		rows pgx.Rows
		err  error
	)
	if stop := PrefixStopKey(prefix); stop != "" {
		rows, err = h.pool.Query(ctx, h.prefixSQL, prefix, stop)
	} else {
		rows, err = h.pool.Query(ctx, h.openPrefix, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: prefix scan %s: %w", domain.ErrStoreUnavailable, prefix, err)
	}

	keep := func(s domain.PositionSample) bool {
		if s.VehicleID != vehicleID || s.Timestamp < from {
			return false
		}
		return to == nil || s.Timestamp <= *to
	}
	return newRowCursor(rows, decodeFullRow, keep, opts.Limit, h.log), nil
}

func decodeLocationRow(rows pgx.Rows) (domain.PositionSample, bool, error) {
	var key, loc string
	if err := rows.Scan(&key, &loc); err != nil {
		return domain.PositionSample{}, false, err
	}
	s, ok := parseLocation(key, loc)
	return s, ok, nil
}

func decodeFullRow(rows pgx.Rows) (domain.PositionSample, bool, error) {
	var key, loc, stat string
	if err := rows.Scan(&key, &loc, &stat); err != nil {
		return domain.PositionSample{}, false, err
	}
	s, ok := parseLocation(key, loc)
	if !ok {
		return s, false, nil
	}
	var g statGroup
	if err := json.Unmarshal([]byte(stat), &g); err != nil || g.Speed == nil {
		return domain.PositionSample{}, false, nil
	}
	s.Speed = float64(*g.Speed)
	return s, true, nil
}

func parseLocation(key, loc string) (domain.PositionSample, bool) {
	vehicleID, ts, ok := ParseRowKey(key)
	if !ok {
		return domain.PositionSample{}, false
	}
	var g locGroup
	if err := json.Unmarshal([]byte(loc), &g); err != nil || g.Lat == nil || g.Lon == nil {
		return domain.PositionSample{}, false
	}
	return domain.PositionSample{
		VehicleID: vehicleID,
		Timestamp: ts,
		Latitude:  float64(*g.Lat),
		Longitude: float64(*g.Lon),
	}, true
}
