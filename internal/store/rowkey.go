package store

import (
	"strconv"
	"strings"
)

// Row keys are "{vehicleId}_{timestampSeconds}" with an unpadded decimal
// timestamp. Byte order of keys is therefore not chronological once the
// timestamp crosses a digit-count boundary.

const rowKeySep = "_"

func RowKey(vehicleID string, ts int64) string {
	return vehicleID + rowKeySep + strconv.FormatInt(ts, 10)
}

// ParseRowKey splits on the first separator; everything after it must be a
// run of decimal digits.
func ParseRowKey(key string) (vehicleID string, ts int64, ok bool) {
	vehicleID, rest, found := strings.Cut(key, rowKeySep)
	if !found || vehicleID == "" || rest == "" {
		return "", 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return "", 0, false
		}
	}
	ts, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return vehicleID, ts, true
}

// RowKeyEncodable reports whether samples for the vehicle can be read back:
// ids containing the separator would parse to a different vehicle.
func RowKeyEncodable(vehicleID string) bool {
	return vehicleID != "" && !strings.Contains(vehicleID, rowKeySep)
}

// RowPrefix is the scan prefix covering every row of a vehicle.
func RowPrefix(vehicleID string) string {
	return vehicleID + rowKeySep
}

// PrefixStopKey returns the smallest key greater than every key starting with
// prefix, or "" when no such key exists (prefix is all 0xff bytes).
func PrefixStopKey(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
