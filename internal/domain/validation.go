package domain

import (
	"fmt"
	"time"
)

// ValidateListing checks attribute ranges of a listing about to be created.
// now is used for the availability check, compared at day granularity.
func ValidateListing(l *Listing, now time.Time) error {
	if l.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidListing)
	}
	if l.Bedrooms < 0 || l.Bedrooms > 20 {
		return fmt.Errorf("%w: bedrooms must be between 0 and 20", ErrInvalidListing)
	}
	if l.Bathrooms < 1 || l.Bathrooms > 20 {
		return fmt.Errorf("%w: bathrooms must be between 1 and 20", ErrInvalidListing)
	}
	if err := ValidateRent(l.Rent); err != nil {
		return err
	}
	if err := ValidateDeposit(l.Deposit); err != nil {
		return err
	}
	if l.SquareFoot != nil && *l.SquareFoot < 100 {
		return fmt.Errorf("%w: square foot must be at least 100", ErrInvalidListing)
	}
	if err := ValidateAvailability(l.AvailableAt, now); err != nil {
		return err
	}
	switch l.Laundry {
	case LaundryInUnit, LaundryShared, LaundryNone:
	default:
		return fmt.Errorf("%w: unknown laundry %q", ErrInvalidListing, l.Laundry)
	}
	switch l.Parking {
	case ParkingAvailable, ParkingUnavailable:
	default:
		return fmt.Errorf("%w: unknown parking %q", ErrInvalidListing, l.Parking)
	}
	switch l.Pets {
	case PetsAllowed, PetsNotAllowed:
	default:
		return fmt.Errorf("%w: unknown pets %q", ErrInvalidListing, l.Pets)
	}
	return ValidateLocation(l.Location)
}

// ValidateLocation requires a place id and a point within coordinate ranges
func ValidateLocation(loc Location) error {
	if loc.PlaceID == "" {
		return fmt.Errorf("%w: location place id is required", ErrInvalidListing)
	}
	if loc.Point.Lat < -90 || loc.Point.Lat > 90 {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidListing)
	}
	if loc.Point.Lng < -180 || loc.Point.Lng > 180 {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidListing)
	}
	return nil
}

func ValidateRent(rent int) error {
	if rent < 100 {
		return fmt.Errorf("%w: rent must be at least 100", ErrInvalidListing)
	}
	return nil
}

func ValidateDeposit(deposit int) error {
	if deposit < 0 {
		return fmt.Errorf("%w: deposit must not be negative", ErrInvalidListing)
	}
	return nil
}

func ValidateAvailability(at, now time.Time) error {
	if at.IsZero() {
		return fmt.Errorf("%w: availability date is required", ErrInvalidListing)
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if at.UTC().Before(today) {
		return fmt.Errorf("%w: availability date is in the past", ErrInvalidListing)
	}
	return nil
}

// ValidatePhotoPosition positions are 1-based
func ValidatePhotoPosition(position int) error {
	if position < 1 || position > MaxPhotos {
		return fmt.Errorf("%w: photo position must be between 1 and %d", ErrInvalidListing, MaxPhotos)
	}
	return nil
}
