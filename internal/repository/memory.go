package repository

import (
	"context"
	"sort"
	"sync"

	"listing-discovery/internal/domain"
)

// MemoryGeoStore in-process GeoStore for local runs and tests
type MemoryGeoStore struct {
	mu       sync.RWMutex
	listings map[string]domain.Listing
}

func NewMemoryGeoStore() *MemoryGeoStore {
	return &MemoryGeoStore{listings: make(map[string]domain.Listing)}
}

func (s *MemoryGeoStore) QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	return s.filter(ctx, func(l domain.Listing) bool {
		return box.Contains(l.Location.Point)
	})
}

func (s *MemoryGeoStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return &l, nil
}

func (s *MemoryGeoStore) Put(ctx context.Context, listing *domain.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.listings {
		if id != listing.ID &&
			other.Location.PlaceID == listing.Location.PlaceID &&
			other.Apt == listing.Apt {
			return domain.ErrDuplicateListing
		}
	}
	s.listings[listing.ID] = *listing
	return nil
}

func (s *MemoryGeoStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return domain.ErrListingNotFound
	}
	delete(s.listings, id)
	return nil
}

func (s *MemoryGeoStore) ExistsAtLocation(ctx context.Context, placeID, apt string) (bool, error) {
	found, err := s.filter(ctx, func(l domain.Listing) bool {
		if l.Location.PlaceID != placeID {
			return false
		}
		return apt == "" || l.Apt == "" || l.Apt == apt
	})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (s *MemoryGeoStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	return s.filter(ctx, func(l domain.Listing) bool {
		return l.OwnerID == ownerID
	})
}

func (s *MemoryGeoStore) filter(ctx context.Context, keep func(domain.Listing) bool) ([]domain.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []domain.Listing{}
	for _, l := range s.listings {
		if keep(l) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
