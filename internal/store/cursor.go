package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/metrics"
)

// rowDecoder turns the current row into a sample. ok=false marks a malformed
// row that the cursor skips; a non-nil error aborts the scan.
type rowDecoder func(rows pgx.Rows) (s domain.PositionSample, ok bool, err error)

// rowCursor streams samples out of a pgx result set. It stops after limit
// samples when limit > 0, releasing the connection early, and marks itself
// truncated if another sample was pending.
type rowCursor struct {
	rows   pgx.Rows
	decode rowDecoder
	keep   func(domain.PositionSample) bool
	log    *slog.Logger

	limit   int
	emitted int
	skipped int
	trunc   bool
	cur     domain.PositionSample
	err     error
	closed  bool
}

func newRowCursor(rows pgx.Rows, decode rowDecoder, keep func(domain.PositionSample) bool, limit int, log *slog.Logger) *rowCursor {
	return &rowCursor{rows: rows, decode: decode, keep: keep, limit: limit, log: log}
}

func (c *rowCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}

	for c.rows.Next() {
		s, ok, err := c.decode(c.rows)
		if err != nil {
			c.err = fmt.Errorf("%w: decode row: %w", domain.ErrQueryFailed, err)
			c.Close()
			return false
		}
		if !ok {
			c.skipped++
			metrics.ScanRowsSkipped.Inc()
			continue
		}
		if c.keep != nil && !c.keep(s) {
			continue
		}
		if c.limit > 0 && c.emitted >= c.limit {
			c.trunc = true
			c.Close()
			return false
		}
		c.cur = s
		c.emitted++
		return true
	}

	if err := c.rows.Err(); err != nil {
		c.err = fmt.Errorf("%w: scan interrupted: %w", domain.ErrQueryFailed, err)
	}
	c.Close()
	return false
}

func (c *rowCursor) Sample() domain.PositionSample { return c.cur }

func (c *rowCursor) Skipped() int { return c.skipped }

func (c *rowCursor) Truncated() bool { return c.trunc }

func (c *rowCursor) Err() error { return c.err }

func (c *rowCursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.rows.Close()
	if c.skipped > 0 {
		c.log.Debug("skipped malformed rows", "count", c.skipped, "emitted", c.emitted)
	}
}

// flexFloat is a cell value that was written either as a JSON number or as a
// quoted decimal string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
