package types

import (
	"fmt"
	"strings"
)

// Coordinate constraints (WGS84 degrees).
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// ValidateCoordinates checks that lat/lon are WGS84 degrees.
func ValidateCoordinates(lat, lon float64) error {
	if lat < MinLat || lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %.6f outside [%.0f, %.0f]", lat, MinLat, MaxLat), nil)
	}
	if lon < MinLon || lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %.6f outside [%.0f, %.0f]", lon, MinLon, MaxLon), nil)
	}
	return nil
}

// Validate checks that the point can be submitted and cached.
func (p Point) Validate() error {
	if p.ID == "" {
		return NewAppError(ErrCodeValidationMissingField, "point identifier is empty", nil)
	}
	if strings.ContainsAny(p.ID, `/\`) {
		return NewAppError(ErrCodeValidationInvalidField,
			fmt.Sprintf("point identifier %q cannot be used as a cache file name", p.ID), nil)
	}
	if p.Network == "" {
		return NewAppError(ErrCodeValidationMissingField, "network name is empty", nil)
	}
	return ValidateCoordinates(p.Lat, p.Lon)
}

// SanitizeID strips the parentheses and double quotes that GIS exports wrap
// around string identifiers.
func SanitizeID(raw string) string {
	return strings.NewReplacer("(", "", ")", "", `"`, "").Replace(strings.TrimSpace(raw))
}
