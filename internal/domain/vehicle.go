package domain

const StatusUnknown = "UNKNOWN"

// VehicleState is the latest known state of one vehicle as held by the hot
// cache. Location fields are nil until the vehicle has reported.
type VehicleState struct {
	VehicleID string   `json:"vehicleId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Timestamp *int64   `json:"timestamp"`
	Status    string   `json:"status"`
	Load      float64  `json:"load"`
}

// Known reports whether any location field has been stored for the vehicle.
func (s VehicleState) Known() bool {
	return s.Latitude != nil || s.Longitude != nil || s.Speed != nil || s.Timestamp != nil
}

// Location is the current-location view served to callers.
type Location struct {
	VehicleID string   `json:"vehicleId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Timestamp *int64   `json:"timestamp"`
}

func (s VehicleState) Location() Location {
	return Location{
		VehicleID: s.VehicleID,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Speed:     s.Speed,
		Timestamp: s.Timestamp,
	}
}

// PositionSample is one historical row. Samples read by a time-range scan
// carry no speed because only the location group is fetched.
type PositionSample struct {
	VehicleID string  `json:"vehicleId,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
}

// VehiclePath is a vehicle's points as [longitude, latitude] pairs.
type VehiclePath struct {
	VehicleID string       `json:"vehicleId"`
	Path      [][2]float64 `json:"path"`
}

type HeatCell struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Density int     `json:"density"`
}
