package geo_test

import (
	"math"
	"testing"

	"github.com/raincheck/raincheck/internal/geo"
)

// ─── DistanceKM ──────────────────────────────────────────────

func TestDistanceKMZero(t *testing.T) {
	if d := geo.DistanceKM(37.7519, 128.8761, 37.7519, 128.8761); d != 0 {
		t.Errorf("DistanceKM(same point) = %v, want 0", d)
	}
}

func TestDistanceKMOneDegreeLatitude(t *testing.T) {
	// One degree of latitude on a 6371 km sphere is 6371*pi/180 km.
	want := 6371.0 * math.Pi / 180
	got := geo.DistanceKM(0, 0, 1, 0)
	if math.Abs(got-want) > 0.001 {
		t.Errorf("DistanceKM(0,0 -> 1,0) = %v, want %v", got, want)
	}
}

func TestDistanceKMSymmetric(t *testing.T) {
	a := geo.DistanceKM(37.7519, 128.8761, 37.8050, 128.9090)
	b := geo.DistanceKM(37.8050, 128.9090, 37.7519, 128.8761)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("DistanceKM not symmetric: %v vs %v", a, b)
	}
	// Gyeongpo is a few km from downtown Gangneung, sanity-check the scale.
	if a < 3 || a > 10 {
		t.Errorf("DistanceKM = %v, want a single-digit km distance", a)
	}
}

// ─── ParseCoords ─────────────────────────────────────────────

func TestParseCoords(t *testing.T) {
	tests := []struct {
		in       string
		lat, lng float64
		ok       bool
	}{
		{"37.7519,128.8761", 37.7519, 128.8761, true},
		{" 37.7519 , 128.8761 ", 37.7519, 128.8761, true},
		{"-33.86,151.21", -33.86, 151.21, true},
		{"37.7519", 0, 0, false},
		{"abc,def", 0, 0, false},
		{"37.75,xyz", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		lat, lng, ok := geo.ParseCoords(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseCoords(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && (lat != tt.lat || lng != tt.lng) {
			t.Errorf("ParseCoords(%q) = %v,%v, want %v,%v", tt.in, lat, lng, tt.lat, tt.lng)
		}
	}
}

func TestFormatCoordsRoundTrip(t *testing.T) {
	s := geo.FormatCoords(37.7519, 128.8761)
	if s != "37.7519,128.8761" {
		t.Errorf("FormatCoords = %q, want %q", s, "37.7519,128.8761")
	}
	lat, lng, ok := geo.ParseCoords(s)
	if !ok || lat != 37.7519 || lng != 128.8761 {
		t.Errorf("round trip failed: %v,%v ok=%v", lat, lng, ok)
	}
}

// ─── RoundKM ─────────────────────────────────────────────────

func TestRoundKM(t *testing.T) {
	if got := geo.RoundKM(1.23456); got != 1.23 {
		t.Errorf("RoundKM(1.23456) = %v, want 1.23", got)
	}
	if got := geo.RoundKM(0.005); got != 0.01 {
		t.Errorf("RoundKM(0.005) = %v, want 0.01", got)
	}
}
