package repository

import (
	"context"
	"time"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/metrics"
)

// GeoStore authoritative listing store with a bounding-box predicate on
// Location.Point.
type GeoStore interface {
	// QueryByBoundingBox returns listings whose point lies inside box, ordered
	// by creation time then id.
	QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error)
	// Get returns domain.ErrListingNotFound when id is unknown
	Get(ctx context.Context, id string) (*domain.Listing, error)
	// Put inserts or replaces by id; an address collision yields domain.ErrDuplicateListing
	Put(ctx context.Context, listing *domain.Listing) error
	// Delete returns domain.ErrListingNotFound when id is unknown
	Delete(ctx context.Context, id string) error
	// ExistsAtLocation applies the address uniqueness rule: with apt, a listing
	// at placeID with the same apt or no apt collides; without apt, any
	// listing at placeID collides.
	ExistsAtLocation(ctx context.Context, placeID, apt string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error)
}

// TimedGeoStore bounds every call with a timeout and records metrics
type TimedGeoStore struct {
	inner   GeoStore
	timeout time.Duration
}

func NewTimedGeoStore(inner GeoStore, timeout time.Duration) *TimedGeoStore {
	return &TimedGeoStore{inner: inner, timeout: timeout}
}

func (s *TimedGeoStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}

func (s *TimedGeoStore) QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	listings, err := s.inner.QueryByBoundingBox(ctx, box)
	metrics.StoreQueriesTotal.WithLabelValues("query_box", metrics.Outcome(err)).Inc()
	return listings, err
}

func (s *TimedGeoStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	l, err := s.inner.Get(ctx, id)
	metrics.StoreQueriesTotal.WithLabelValues("get", metrics.Outcome(err)).Inc()
	return l, err
}

func (s *TimedGeoStore) Put(ctx context.Context, listing *domain.Listing) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	err := s.inner.Put(ctx, listing)
	metrics.StoreQueriesTotal.WithLabelValues("put", metrics.Outcome(err)).Inc()
	return err
}

func (s *TimedGeoStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	err := s.inner.Delete(ctx, id)
	metrics.StoreQueriesTotal.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	return err
}

func (s *TimedGeoStore) ExistsAtLocation(ctx context.Context, placeID, apt string) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	ok, err := s.inner.ExistsAtLocation(ctx, placeID, apt)
	metrics.StoreQueriesTotal.WithLabelValues("exists", metrics.Outcome(err)).Inc()
	return ok, err
}

func (s *TimedGeoStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	listings, err := s.inner.ListByOwner(ctx, ownerID)
	metrics.StoreQueriesTotal.WithLabelValues("list_owner", metrics.Outcome(err)).Inc()
	return listings, err
}
