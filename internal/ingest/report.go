package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/store"
)

// LocationReport is the decoded location-stream payload. Unknown fields are
// ignored.
type LocationReport struct {
	VehicleID string   `json:"vehicle_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Timestamp *float64 `json:"timestamp"`
	Status    *string  `json:"status"`
	Load      *float64 `json:"load"`
}

// DecodeLocation requires vehicle_id and the four numeric fields. A
// fractional timestamp is truncated to whole seconds.
func DecodeLocation(payload []byte) (LocationReport, error) {
	var r LocationReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return LocationReport{}, fmt.Errorf("%w: %w", domain.ErrMalformedMessage, err)
	}

	switch {
	case r.VehicleID == "":
		return LocationReport{}, fmt.Errorf("%w: missing vehicle_id", domain.ErrMalformedMessage)
	case r.Latitude == nil:
		return LocationReport{}, fmt.Errorf("%w: missing latitude", domain.ErrMalformedMessage)
	case r.Longitude == nil:
		return LocationReport{}, fmt.Errorf("%w: missing longitude", domain.ErrMalformedMessage)
	case r.Speed == nil:
		return LocationReport{}, fmt.Errorf("%w: missing speed", domain.ErrMalformedMessage)
	case r.Timestamp == nil:
		return LocationReport{}, fmt.Errorf("%w: missing timestamp", domain.ErrMalformedMessage)
	}
	return r, nil
}

func (r LocationReport) UnixSeconds() int64 {
	return int64(*r.Timestamp)
}

// Fields is the hash update for the hot cache. status and load are only
// written when the report carries them.
func (r LocationReport) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		store.FieldLat:       formatFloat(*r.Latitude),
		store.FieldLon:       formatFloat(*r.Longitude),
		store.FieldSpeed:     formatFloat(*r.Speed),
		store.FieldTimestamp: strconv.FormatInt(r.UnixSeconds(), 10),
	}
	if r.Status != nil && *r.Status != "" {
		fields[store.FieldStatus] = *r.Status
	}
	if r.Load != nil {
		fields[store.FieldLoad] = formatFloat(*r.Load)
	}
	return fields
}

func (r LocationReport) Sample() domain.PositionSample {
	return domain.PositionSample{
		VehicleID: r.VehicleID,
		Timestamp: r.UnixSeconds(),
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		Speed:     *r.Speed,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
