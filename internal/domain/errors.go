package domain

import (
	"context"
	"errors"
)

var (
	// ErrInvalidLocation locality cannot be resolved (bad place id, no geometry)
	ErrInvalidLocation = errors.New("invalid location")
	// ErrUpstreamLookup places service unavailable or erroring
	ErrUpstreamLookup = errors.New("upstream lookup failed")
	// ErrCacheUnavailable cache backend failure; never leaves the cache package
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrStore authoritative store failure
	ErrStore = errors.New("store error")

	ErrListingNotFound  = errors.New("listing not found")
	ErrDuplicateListing = errors.New("listing already exists at this address")
	ErrInvalidListing   = errors.New("invalid listing")
	ErrForbidden        = errors.New("forbidden")
	ErrListingOccupied  = errors.New("listing is occupied")
)

// IsRetryable reports whether the caller may retry with backoff
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidLocation) {
		return false
	}
	return errors.Is(err, ErrUpstreamLookup) ||
		errors.Is(err, ErrStore) ||
		errors.Is(err, context.DeadlineExceeded)
}
