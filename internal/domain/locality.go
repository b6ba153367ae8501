package domain

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Suggestion token selected in the places autocomplete UI
type Suggestion struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// BoundingBox rectangular lat/lng region. West > East means the box crosses
// the antimeridian.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate checks coordinate ranges
func (b BoundingBox) Validate() error {
	if b.North < -90 || b.North > 90 || b.South < -90 || b.South > 90 {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidLocation)
	}
	if b.East < -180 || b.East > 180 || b.West < -180 || b.West > 180 {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidLocation)
	}
	if b.South > b.North {
		return fmt.Errorf("%w: south above north", ErrInvalidLocation)
	}
	return nil
}

// CrossesAntimeridian reports whether the box wraps past 180°
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.West > b.East
}

// Bounds splits the box into one or two orb bounds that do not wrap
func (b BoundingBox) Bounds() []orb.Bound {
	if !b.CrossesAntimeridian() {
		return []orb.Bound{{
			Min: orb.Point{b.West, b.South},
			Max: orb.Point{b.East, b.North},
		}}
	}
	return []orb.Bound{
		{Min: orb.Point{b.West, b.South}, Max: orb.Point{180, b.North}},
		{Min: orb.Point{-180, b.South}, Max: orb.Point{b.East, b.North}},
	}
}

// Contains reports whether p lies inside the box, edges included
func (b BoundingBox) Contains(p GeoPoint) bool {
	pt := orb.Point{p.Lng, p.Lat}
	for _, bound := range b.Bounds() {
		if bound.Contains(pt) {
			return true
		}
	}
	return false
}

// Locality canonical identity of a searched area plus the cached result set
type Locality struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name,omitempty"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
	BoundingBox       BoundingBox        `json:"bounding_box"`
	ListingIDs        []string           `json:"listing_ids,omitempty"`
	RefreshedAt       time.Time          `json:"refreshed_at"`
}

// SearchResult listings inside a locality
type SearchResult struct {
	Listings []Listing `json:"listings"`
	Locality Locality  `json:"locality"`
}

// PopularityEntry search count for one place id
type PopularityEntry struct {
	PlaceID string `json:"place_id"`
	Count   int64  `json:"count"`
}

// LocalitySummary display entry for popular localities
type LocalitySummary struct {
	PlaceID     string `json:"place_id"`
	DisplayText string `json:"display_text"`
}

// PlaceCandidate one autocomplete prediction
type PlaceCandidate struct {
	PlaceID     string   `json:"place_id"`
	Description string   `json:"description"`
	Types       []string `json:"types,omitempty"`
}
