package resolver

import (
	"context"
	"fmt"
	"time"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/places"

	"go.uber.org/zap"
)

// PlacesLookup external places service
type PlacesLookup interface {
	Details(ctx context.Context, placeID string) (*places.PlaceDetails, error)
	Autocomplete(ctx context.Context, input, typeFilter string) ([]domain.PlaceCandidate, error)
}

// LocalityResolver turns an autocomplete suggestion into a canonical locality.
// Nothing is cached at this layer.
type LocalityResolver struct {
	lookup            PlacesLookup
	autocompleteTypes string
	logger            *zap.Logger
	now               func() time.Time
}

func NewLocalityResolver(lookup PlacesLookup, autocompleteTypes string, logger *zap.Logger) *LocalityResolver {
	return &LocalityResolver{
		lookup:            lookup,
		autocompleteTypes: autocompleteTypes,
		logger:            logger,
		now:               time.Now,
	}
}

// Resolve calls places details once. The locality is keyed by the suggestion's
// place id so cache and popularity keys match what clients send.
func (r *LocalityResolver) Resolve(ctx context.Context, s domain.Suggestion) (*domain.Locality, error) {
	if s.PlaceID == "" {
		return nil, fmt.Errorf("%w: suggestion has no place id", domain.ErrInvalidLocation)
	}

	details, err := r.lookup.Details(ctx, s.PlaceID)
	if err != nil {
		return nil, err
	}
	if details.Viewport == nil {
		r.logger.Warn("Place has no geometry",
			zap.String("place_id", s.PlaceID),
		)
		return nil, fmt.Errorf("%w: place %s has no geometry", domain.ErrInvalidLocation, s.PlaceID)
	}
	if err := details.Viewport.Validate(); err != nil {
		return nil, err
	}

	formatted := details.FormattedAddress
	if formatted == "" {
		formatted = s.Description
	}

	return &domain.Locality{
		PlaceID:           s.PlaceID,
		Name:              details.Name,
		FormattedAddress:  formatted,
		AddressComponents: details.AddressComponents,
		BoundingBox:       *details.Viewport,
		RefreshedAt:       r.now().UTC(),
	}, nil
}

// FormattedAddress looks the place up again; used when no cached metadata exists
func (r *LocalityResolver) FormattedAddress(ctx context.Context, placeID string) (string, error) {
	details, err := r.lookup.Details(ctx, placeID)
	if err != nil {
		return "", err
	}
	return details.FormattedAddress, nil
}

// DisplayText finds the autocomplete suggestion for formattedAddress that
// still carries placeID. ok is false when no candidate matches.
func (r *LocalityResolver) DisplayText(ctx context.Context, placeID, formattedAddress string) (string, bool, error) {
	if formattedAddress == "" {
		return "", false, nil
	}
	candidates, err := r.lookup.Autocomplete(ctx, formattedAddress, r.autocompleteTypes)
	if err != nil {
		return "", false, err
	}
	for _, c := range candidates {
		if c.PlaceID == placeID {
			return c.Description, true, nil
		}
	}
	return "", false, nil
}
