package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxPhotos number of ordered photo slots per listing
const MaxPhotos = 5

// Laundry values
const (
	LaundryInUnit = "in-unit"
	LaundryShared = "shared"
	LaundryNone   = "none"
)

// Parking values
const (
	ParkingAvailable   = "available"
	ParkingUnavailable = "unavailable"
)

// Pets values
const (
	PetsAllowed    = "allowed"
	PetsNotAllowed = "not-allowed"
)

// Listing one rental unit
type Listing struct {
	ID          string    `json:"id" bson:"_id"`
	OwnerID     string    `json:"owner_id" bson:"owner_id"`
	Apt         string    `json:"apt,omitempty" bson:"apt,omitempty"`
	Description string    `json:"description" bson:"description"`
	Bedrooms    int       `json:"bedrooms" bson:"bedrooms"`
	Bathrooms   int       `json:"bathrooms" bson:"bathrooms"`
	Rent        int       `json:"rent" bson:"rent"`
	Deposit     int       `json:"deposit" bson:"deposit"`
	SquareFoot  *int      `json:"square_foot,omitempty" bson:"square_foot,omitempty"`
	AvailableAt time.Time `json:"available_at" bson:"available_at"`
	Occupied    bool      `json:"occupied" bson:"occupied"`
	// Photos slot i holds position i+1; empty string means no photo
	Photos    [MaxPhotos]string `json:"photos" bson:"photos"`
	Laundry   string            `json:"laundry" bson:"laundry"`
	Parking   string            `json:"parking" bson:"parking"`
	Pets      string            `json:"pets" bson:"pets"`
	Location  Location          `json:"location" bson:"location"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" bson:"updated_at"`
}

// Location geocoded position of a listing
type Location struct {
	Name              string             `json:"name" bson:"name"`
	PlaceID           string             `json:"place_id" bson:"place_id"`
	FormattedAddress  string             `json:"formatted_address" bson:"formatted_address"`
	Point             GeoPoint           `json:"point" bson:"point"`
	AddressComponents []AddressComponent `json:"address_components" bson:"address_components"`
}

// GeoPoint lat/lng pair
type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// AddressComponent one structured fragment of a geocoded address
type AddressComponent struct {
	LongName  string   `json:"long_name" bson:"long_name"`
	ShortName string   `json:"short_name" bson:"short_name"`
	Types     []string `json:"types" bson:"types"`
}

// Key canonical form used for membership matching: trimmed lowercase names and
// the sorted, de-duplicated, lowercase type set. Every part is length-prefixed
// so names holding separator characters cannot collide.
func (c AddressComponent) Key() string {
	seen := make(map[string]struct{}, len(c.Types))
	types := make([]string, 0, len(c.Types))
	for _, t := range c.Types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	writeKeyPart(&b, strings.ToLower(strings.TrimSpace(c.LongName)))
	writeKeyPart(&b, strings.ToLower(strings.TrimSpace(c.ShortName)))
	for _, t := range types {
		writeKeyPart(&b, t)
	}
	return b.String()
}

// writeKeyPart appends "<len>:<s>"
func writeKeyPart(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// ComponentKeys canonical keys of components, de-duplicated, input order kept
func ComponentKeys(components []AddressComponent) []string {
	seen := make(map[string]struct{}, len(components))
	keys := make([]string, 0, len(components))
	for _, c := range components {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// HasPhoto reports whether slot position (1-based) is filled
func (l *Listing) HasPhoto(position int) bool {
	if position < 1 || position > MaxPhotos {
		return false
	}
	return l.Photos[position-1] != ""
}
