// Package places is the place-directory boundary: venue search, detail
// lookup, and geocoding. Every operation returns *LookupError on failure so
// callers can tell a degraded lookup from a programming error and apply
// their documented fallback (skip the venue, fall back to summary data)
// instead of aborting a whole batch.
package places

import (
	"context"
	"fmt"
)

// Summary is one nearby-search result row. Lat/Lng are nil when the
// directory returned no geometry for the venue.
type Summary struct {
	Name     string
	PlaceID  string
	Vicinity string
	Rating   *float64
	Lat      *float64
	Lng      *float64
	Types    []string
}

// Details is a full venue record.
type Details struct {
	Name             string
	FormattedAddress string
	Vicinity         string
	Rating           *float64
	Types            []string
	Lat              *float64
	Lng              *float64
}

// Directory is the read-only place directory the replanning engine, the
// classifier, and the planner consult.
type Directory interface {
	// FindPlaceID resolves a free-text name to a place id.
	FindPlaceID(ctx context.Context, query string) (string, error)
	// Geocode returns "lat,lng" for a place id.
	Geocode(ctx context.Context, placeID string) (string, error)
	// Details returns the full record for a place id.
	Details(ctx context.Context, placeID string) (*Details, error)
	// NearbySearch returns venues matching keyword within radiusM meters of
	// location ("lat,lng").
	NearbySearch(ctx context.Context, location, keyword string, radiusM int) ([]Summary, error)
	// ReverseGeocode returns a street-level address for coordinates.
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// CoordsFromTitle resolves a free-text place name to "lat,lng" through a
// find-place call followed by a geocode.
func CoordsFromTitle(ctx context.Context, dir Directory, title string) (string, error) {
	placeID, err := dir.FindPlaceID(ctx, title)
	if err != nil {
		return "", err
	}
	return dir.Geocode(ctx, placeID)
}

// LookupError is the typed failure for directory operations.
type LookupError struct {
	Op     string // findplace, geocode, details, nearby, revgeocode
	Query  string
	Status string // upstream API status or transport condition
	Err    error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("places %s %q: %s: %v", e.Op, e.Query, e.Status, e.Err)
	}
	return fmt.Sprintf("places %s %q: %s", e.Op, e.Query, e.Status)
}

func (e *LookupError) Unwrap() error { return e.Err }
