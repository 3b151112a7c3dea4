// Package geo holds the spherical-distance and coordinate-string helpers
// shared by the replanning engine and the place directory client.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// earthRadiusKM is the mean Earth radius used for great-circle distances.
const earthRadiusKM = 6371.0

// DistanceKM returns the haversine great-circle distance in kilometers
// between two points given in degrees. Deterministic, no failure modes.
func DistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

// ParseCoords splits a "lat,lng" string. ok is false on malformed input —
// callers treat that as "no distance filtering possible", never as an error.
func ParseCoords(s string) (lat, lng float64, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// FormatCoords renders a "lat,lng" pair the way the place directory expects.
func FormatCoords(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

// RoundKM rounds a distance to two decimals for presentation.
func RoundKM(d float64) float64 {
	return math.Round(d*100) / 100
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
