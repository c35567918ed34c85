// Package keys derives cache keys for elevation samples.
package keys

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	h3 "github.com/uber/h3-go/v4"
)

// ElevationRes is the H3 resolution used to bucket coordinates (cells of roughly
// one square metre, finer than any elevation model the service serves).
const ElevationRes = 15

const prefix = "elev"

// Elevation returns the cache key for a coordinate. Coordinates H3 cannot index
// fall back to a digest of the exact values.
func Elevation(lat, lng float64) string {
	if !math.IsNaN(lat) && !math.IsNaN(lng) {
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, ElevationRes)
		if err == nil {
			return fmt.Sprintf("%s:%d:%s", prefix, ElevationRes, cell.String())
		}
	}
	raw := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	return fmt.Sprintf("%s:raw:%016x", prefix, xxhash.Sum64String(raw))
}
