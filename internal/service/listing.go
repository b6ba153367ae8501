package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListingHooks cache maintenance run after each store mutation
type ListingHooks interface {
	OnListingCreated(ctx context.Context, listing *domain.Listing)
	OnListingUpdated(ctx context.Context, listing *domain.Listing)
	OnListingDeleted(ctx context.Context, listingID string)
}

// CreateListingInput owner-supplied listing fields
type CreateListingInput struct {
	Apt         string          `json:"apt"`
	Description string          `json:"description"`
	Bedrooms    int             `json:"bedrooms"`
	Bathrooms   int             `json:"bathrooms"`
	Rent        int             `json:"rent"`
	Deposit     int             `json:"deposit"`
	SquareFoot  *int            `json:"square_foot"`
	AvailableAt time.Time       `json:"available_at"`
	Laundry     string          `json:"laundry"`
	Parking     string          `json:"parking"`
	Pets        string          `json:"pets"`
	Location    domain.Location `json:"location"`
}

// UpdateListingInput nil fields are left unchanged. Location is not editable.
type UpdateListingInput struct {
	Description *string    `json:"description"`
	Rent        *int       `json:"rent"`
	Deposit     *int       `json:"deposit"`
	AvailableAt *time.Time `json:"available_at"`
	Occupied    *bool      `json:"occupied"`
}

// ListingService listing CRUD against the GeoStore, keeping the cache in step
type ListingService struct {
	store  repository.GeoStore
	cache  ListingCache
	hooks  ListingHooks
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewListingService(store repository.GeoStore, listingCache ListingCache, hooks ListingHooks, logger *zap.Logger) *ListingService {
	return &ListingService{
		store:  store,
		cache:  listingCache,
		hooks:  hooks,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create validates, enforces address uniqueness and persists a new listing
func (s *ListingService) Create(ctx context.Context, ownerID string, in CreateListingInput) (*domain.Listing, error) {
	now := s.now().UTC()
	l := &domain.Listing{
		OwnerID:     ownerID,
		Apt:         strings.TrimSpace(in.Apt),
		Description: in.Description,
		Bedrooms:    in.Bedrooms,
		Bathrooms:   in.Bathrooms,
		Rent:        in.Rent,
		Deposit:     in.Deposit,
		SquareFoot:  in.SquareFoot,
		AvailableAt: in.AvailableAt,
		Laundry:     in.Laundry,
		Parking:     in.Parking,
		Pets:        in.Pets,
		Location:    in.Location,
	}
	if err := domain.ValidateListing(l, now); err != nil {
		return nil, err
	}

	exists, err := s.store.ExistsAtLocation(ctx, l.Location.PlaceID, l.Apt)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateListing
	}

	l.ID = s.newID()
	l.CreatedAt = now
	l.UpdatedAt = now
	if err := s.store.Put(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("Listing created",
		zap.String("listing_id", l.ID),
		zap.String("owner_id", ownerID),
		zap.String("place_id", l.Location.PlaceID),
	)
	s.hooks.OnListingCreated(ctx, l)
	return l, nil
}

// Update applies non-location edits
func (s *ListingService) Update(ctx context.Context, id, ownerID string, in UpdateListingInput) (*domain.Listing, error) {
	l, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if in.Description != nil {
		l.Description = *in.Description
	}
	if in.Rent != nil {
		if err := domain.ValidateRent(*in.Rent); err != nil {
			return nil, err
		}
		l.Rent = *in.Rent
	}
	if in.Deposit != nil {
		if err := domain.ValidateDeposit(*in.Deposit); err != nil {
			return nil, err
		}
		l.Deposit = *in.Deposit
	}
	if in.AvailableAt != nil {
		if err := domain.ValidateAvailability(*in.AvailableAt, s.now()); err != nil {
			return nil, err
		}
		l.AvailableAt = *in.AvailableAt
	}
	if in.Occupied != nil {
		l.Occupied = *in.Occupied
	}

	if err := s.save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// SetPhoto fills slot position (1-based) with url
func (s *ListingService) SetPhoto(ctx context.Context, id, ownerID string, position int, url string) (*domain.Listing, error) {
	if err := domain.ValidatePhotoPosition(position); err != nil {
		return nil, err
	}
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: photo url is required", domain.ErrInvalidListing)
	}
	l, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	l.Photos[position-1] = url
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// ClearPhoto empties slot position; clearing an empty slot is invalid
func (s *ListingService) ClearPhoto(ctx context.Context, id, ownerID string, position int) (*domain.Listing, error) {
	if err := domain.ValidatePhotoPosition(position); err != nil {
		return nil, err
	}
	l, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !l.HasPhoto(position) {
		return nil, fmt.Errorf("%w: no photo at position %d", domain.ErrInvalidListing, position)
	}
	l.Photos[position-1] = ""
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Delete removes an owned listing and every cached reference to it
func (s *ListingService) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := s.owned(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Listing deleted",
		zap.String("listing_id", id),
		zap.String("owner_id", ownerID),
	)
	s.hooks.OnListingDeleted(ctx, id)
	return nil
}

// Get reads through the cache
func (s *ListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	if l, ok := s.cache.GetListing(ctx, id); ok {
		return l, nil
	}
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.PutListing(ctx, l)
	return l, nil
}

func (s *ListingService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// CheckAvailable consults the store, not the cache
func (s *ListingService) CheckAvailable(ctx context.Context, id string) error {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.Occupied {
		return domain.ErrListingOccupied
	}
	return nil
}

// owned loads from the store and checks the owner
func (s *ListingService) owned(ctx context.Context, id, ownerID string) (*domain.Listing, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return l, nil
}

func (s *ListingService) save(ctx context.Context, l *domain.Listing) error {
	l.UpdatedAt = s.now().UTC()
	if err := s.store.Put(ctx, l); err != nil {
		return err
	}
	s.hooks.OnListingUpdated(ctx, l)
	return nil
}
