package domain

import "math"

// CellSize is the heatmap grid resolution in degrees.
const CellSize = 0.01

// CellOf returns the lower-left corner of the 0.01 degree cell containing the point.
func CellOf(lat, lon float64) (float64, float64) {
	return math.Floor(lat*100) / 100, math.Floor(lon*100) / 100
}
