package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listing-discovery/internal/cache"
	"listing-discovery/internal/domain"
	"listing-discovery/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	compBrooklyn = domain.AddressComponent{LongName: "Brooklyn", ShortName: "Brooklyn", Types: []string{"sublocality_level_1", "sublocality", "political"}}
	compNYC      = domain.AddressComponent{LongName: "New York", ShortName: "New York", Types: []string{"locality", "political"}}
	compNYState  = domain.AddressComponent{LongName: "New York", ShortName: "NY", Types: []string{"administrative_area_level_1", "political"}}
	compQueens   = domain.AddressComponent{LongName: "Queens", ShortName: "Queens", Types: []string{"sublocality_level_1", "sublocality", "political"}}

	boxBrooklyn = domain.BoundingBox{North: 40.74, South: 40.57, East: -73.83, West: -74.04}
	boxNYC      = domain.BoundingBox{North: 40.92, South: 40.48, East: -73.70, West: -74.26}
)

// countingStore counts GeoStore calls
type countingStore struct {
	repository.GeoStore
	boxQueries atomic.Int64
	gets       atomic.Int64
	failWith   error
}

func (s *countingStore) QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error) {
	s.boxQueries.Add(1)
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.GeoStore.QueryByBoundingBox(ctx, box)
}

func (s *countingStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	s.gets.Add(1)
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.GeoStore.Get(ctx, id)
}

// gatedStore holds the first box query until release is closed, failing it
// if the caller's ctx ends first
type gatedStore struct {
	*countingStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(inner *countingStore) *gatedStore {
	return &gatedStore{countingStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrStore, ctx.Err())
		}
	}
	return s.countingStore.QueryByBoundingBox(ctx, box)
}

// fakeResolver serves localities from a map
type fakeResolver struct {
	mu         sync.Mutex
	localities map[string]domain.Locality
	display    map[string]string
	resolves   int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		localities: map[string]domain.Locality{
			"bk":  {PlaceID: "bk", FormattedAddress: "Brooklyn, NY, USA", AddressComponents: []domain.AddressComponent{compBrooklyn, compNYState}, BoundingBox: boxBrooklyn},
			"nyc": {PlaceID: "nyc", FormattedAddress: "New York, NY, USA", AddressComponents: []domain.AddressComponent{compNYC, compNYState}, BoundingBox: boxNYC},
			"qn":  {PlaceID: "qn", FormattedAddress: "Queens, NY, USA", AddressComponents: []domain.AddressComponent{compQueens, compNYState}, BoundingBox: boxNYC},
		},
		display: map[string]string{
			"bk":  "Brooklyn, NY, USA",
			"nyc": "New York, NY, USA",
		},
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, s domain.Suggestion) (*domain.Locality, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves++
	loc, ok := r.localities[s.PlaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidLocation, s.PlaceID)
	}
	loc.RefreshedAt = time.Now().UTC()
	return &loc, nil
}

func (r *fakeResolver) FormattedAddress(ctx context.Context, placeID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.localities[placeID]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidLocation, placeID)
	}
	return loc.FormattedAddress, nil
}

func (r *fakeResolver) DisplayText(ctx context.Context, placeID, formattedAddress string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.display[placeID]
	return text, ok, nil
}

type testEnv struct {
	mr        *miniredis.Miniredis
	store     *countingStore
	resolver  *fakeResolver
	cache     *cache.ListingCache
	tracker   *cache.PopularityTracker
	discovery *DiscoveryService
	listings  *ListingService
}

func setupTestEnv(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { redisClient.Close() })

	cfg := cache.Config{KeyPrefix: "tc_", LocalityTTL: 24 * time.Hour, OpTimeout: 200 * time.Millisecond}
	backend := cache.NewRedisBackend(redisClient)
	logger := zap.NewNop()

	env := &testEnv{
		mr:       mr,
		store:    &countingStore{GeoStore: repository.NewMemoryGeoStore()},
		resolver: newFakeResolver(),
		cache:    cache.NewListingCache(backend, cfg, logger),
		tracker:  cache.NewPopularityTracker(backend, cfg, logger),
	}
	env.discovery = NewDiscoveryService(env.store, env.resolver, env.cache, env.tracker, DiscoveryConfig{PopularLimit: 10, HydrateConcurrency: 4}, logger)
	env.listings = NewListingService(env.store, env.cache, env.discovery, logger)
	return env
}

var seq atomic.Int64

// seed writes straight to the store, bypassing the cache hooks
func (e *testEnv) seed(t *testing.T, id string, point domain.GeoPoint, comps ...domain.AddressComponent) domain.Listing {
	n := seq.Add(1)
	l := domain.Listing{
		ID:          id,
		OwnerID:     "owner-1",
		Bedrooms:    1,
		Bathrooms:   1,
		Rent:        2000,
		AvailableAt: time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		Laundry:     domain.LaundryNone,
		Parking:     domain.ParkingUnavailable,
		Pets:        domain.PetsAllowed,
		Location: domain.Location{
			PlaceID:           "addr-" + id,
			Point:             point,
			AddressComponents: comps,
		},
		CreatedAt: time.Unix(n, 0).UTC(),
	}
	require.NoError(t, e.store.GeoStore.Put(context.Background(), &l))
	return l
}

var (
	inBrooklyn = domain.GeoPoint{Lat: 40.68, Lng: -73.94}
	inQueens   = domain.GeoPoint{Lat: 40.73, Lng: -73.79}
	inBronx    = domain.GeoPoint{Lat: 40.84, Lng: -73.86}
)

func ids(listings []domain.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}
