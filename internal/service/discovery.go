package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"listing-discovery/internal/cache"
	"listing-discovery/internal/domain"
	"listing-discovery/internal/metrics"
	"listing-discovery/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// LocalityResolver resolves suggestions and re-derives display text
type LocalityResolver interface {
	Resolve(ctx context.Context, s domain.Suggestion) (*domain.Locality, error)
	FormattedAddress(ctx context.Context, placeID string) (string, error)
	DisplayText(ctx context.Context, placeID, formattedAddress string) (string, bool, error)
}

// ListingCache best-effort listing and locality cache; never returns errors
type ListingCache interface {
	GetListing(ctx context.Context, id string) (*domain.Listing, bool)
	PutListing(ctx context.Context, listing *domain.Listing)
	InvalidateListing(ctx context.Context, id string)
	GetLocality(ctx context.Context, placeID string) (*domain.Locality, bool)
	GetLocalityResultSet(ctx context.Context, placeID string) (*domain.Locality, bool)
	PutLocalityResultSet(ctx context.Context, locality domain.Locality, listingIDs []string)
	RemoveFromLocality(ctx context.Context, placeID string, listingIDs ...string)
	AddToMatchingLocalities(ctx context.Context, listing *domain.Listing) []string
	RemoveFromAllLocalities(ctx context.Context, listingID string) []string
}

// PopularityTracker ranked search counter; never returns errors
type PopularityTracker interface {
	RecordSearch(ctx context.Context, placeID string)
	TopN(ctx context.Context, n int) []domain.PopularityEntry
}

// DiscoveryConfig tuning knobs
type DiscoveryConfig struct {
	PopularLimit       int
	HydrateConcurrency int
}

// DiscoveryService locality search over the GeoStore with a consistent cache
type DiscoveryService struct {
	store      repository.GeoStore
	resolver   LocalityResolver
	cache      ListingCache
	popularity PopularityTracker
	cfg        DiscoveryConfig
	fills      singleflight.Group
	logger     *zap.Logger
}

func NewDiscoveryService(
	store repository.GeoStore,
	resolver LocalityResolver,
	listingCache ListingCache,
	popularity PopularityTracker,
	cfg DiscoveryConfig,
	logger *zap.Logger,
) *DiscoveryService {
	if cfg.PopularLimit <= 0 {
		cfg.PopularLimit = 10
	}
	if cfg.HydrateConcurrency <= 0 {
		cfg.HydrateConcurrency = 8
	}
	return &DiscoveryService{
		store:      store,
		resolver:   resolver,
		cache:      listingCache,
		popularity: popularity,
		cfg:        cfg,
		logger:     logger,
	}
}

// Search returns every listing in the suggested locality.
// Errors: domain.ErrInvalidLocation, domain.ErrUpstreamLookup, domain.ErrStore.
func (s *DiscoveryService) Search(ctx context.Context, suggestion domain.Suggestion) (*domain.SearchResult, error) {
	t0 := time.Now()
	defer func() {
		metrics.SearchDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	}()

	loc, err := s.resolver.Resolve(ctx, suggestion)
	if err != nil {
		return nil, err
	}

	s.popularity.RecordSearch(ctx, loc.PlaceID)

	if cached, ok := s.cache.GetLocalityResultSet(ctx, loc.PlaceID); ok {
		listings, err := s.hydrate(ctx, loc.PlaceID, cached.ListingIDs)
		if err != nil {
			return nil, err
		}
		metrics.SearchesTotal.WithLabelValues("cache").Inc()
		cached.ListingIDs = listingIDs(listings)
		return &domain.SearchResult{Listings: listings, Locality: *cached}, nil
	}

	// followers share the fill, so it must outlive the leader's request
	fillCtx := context.WithoutCancel(ctx)
	v, err, shared := s.fills.Do(loc.PlaceID, func() (interface{}, error) {
		return s.fill(fillCtx, *loc)
	})
	if err != nil {
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues("store").Inc()

	filled := v.([]domain.Listing)
	listings := make([]domain.Listing, len(filled))
	copy(listings, filled)
	if shared {
		s.logger.Debug("Locality fill shared between concurrent searches",
			zap.String("place_id", loc.PlaceID),
		)
	}

	result := *loc
	result.ListingIDs = listingIDs(listings)
	return &domain.SearchResult{Listings: listings, Locality: result}, nil
}

// fill queries the store by bounding box and writes the result back. The box
// is a coarse filter; membership follows the component match.
func (s *DiscoveryService) fill(ctx context.Context, loc domain.Locality) ([]domain.Listing, error) {
	inBox, err := s.store.QueryByBoundingBox(ctx, loc.BoundingBox)
	if err != nil {
		s.logger.Error("Bounding box query failed",
			zap.String("place_id", loc.PlaceID),
			zap.Error(err),
		)
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(inBox))
	// the box overshoots the locality; cached sets hold component matches only
	for _, l := range inBox {
		if cache.MatchesLocality(loc.AddressComponents, l.Location.AddressComponents) {
			listings = append(listings, l)
		}
	}
	if dropped := len(inBox) - len(listings); dropped > 0 {
		s.logger.Debug("Listings in bounding box outside locality components",
			zap.String("place_id", loc.PlaceID),
			zap.Int("dropped", dropped),
		)
	}

	s.cache.PutLocalityResultSet(ctx, loc, listingIDs(listings))
	for i := range listings {
		s.cache.PutListing(ctx, &listings[i])
	}

	s.logger.Info("Locality cached from store",
		zap.String("place_id", loc.PlaceID),
		zap.Int("listings", len(listings)),
	)
	return listings, nil
}

// hydrate loads ids in order, falling back to the store per id. Ids the store
// no longer knows are dropped and pruned from the locality.
func (s *DiscoveryService) hydrate(ctx context.Context, placeID string, ids []string) ([]domain.Listing, error) {
	found := make([]*domain.Listing, len(ids))
	var (
		mu    sync.Mutex
		stale []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.HydrateConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if l, ok := s.cache.GetListing(gctx, id); ok {
				found[i] = l
				return nil
			}
			l, err := s.store.Get(gctx, id)
			if err != nil {
				if errors.Is(err, domain.ErrListingNotFound) {
					mu.Lock()
					stale = append(stale, id)
					mu.Unlock()
					return nil
				}
				return err
			}
			s.cache.PutListing(gctx, l)
			found[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to hydrate cached locality",
			zap.String("place_id", placeID),
			zap.Error(err),
		)
		return nil, err
	}

	if len(stale) > 0 {
		s.logger.Info("Pruning listings missing from store",
			zap.String("place_id", placeID),
			zap.Strings("listing_ids", stale),
		)
		s.cache.RemoveFromLocality(ctx, placeID, stale...)
	}

	listings := make([]domain.Listing, 0, len(ids))
	for _, l := range found {
		if l != nil {
			listings = append(listings, *l)
		}
	}
	return listings, nil
}

// OnListingCreated runs after the store persisted the listing
func (s *DiscoveryService) OnListingCreated(ctx context.Context, listing *domain.Listing) {
	s.cache.PutListing(ctx, listing)
	added := s.cache.AddToMatchingLocalities(ctx, listing)
	s.logger.Debug("Listing created",
		zap.String("listing_id", listing.ID),
		zap.Int("localities", len(added)),
	)
}

// OnListingUpdated overwrites the cached listing. Location is immutable after
// creation, so locality membership is unchanged.
func (s *DiscoveryService) OnListingUpdated(ctx context.Context, listing *domain.Listing) {
	s.cache.PutListing(ctx, listing)
}

// OnListingDeleted drops the listing and every locality reference to it
func (s *DiscoveryService) OnListingDeleted(ctx context.Context, listingID string) {
	s.cache.InvalidateListing(ctx, listingID)
	removed := s.cache.RemoveFromAllLocalities(ctx, listingID)
	s.logger.Debug("Listing deleted",
		zap.String("listing_id", listingID),
		zap.Strings("localities", removed),
	)
}

// PopularLocalities most searched localities that still resolve to an
// autocomplete suggestion, most popular first.
func (s *DiscoveryService) PopularLocalities(ctx context.Context) ([]domain.LocalitySummary, error) {
	entries := s.popularity.TopN(ctx, s.cfg.PopularLimit)

	summaries := make([]*domain.LocalitySummary, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.HydrateConcurrency)
	for i, e := range entries {
		i, placeID := i, e.PlaceID
		g.Go(func() error {
			summary, err := s.summarize(gctx, placeID)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.LocalitySummary, 0, len(entries))
	for _, sm := range summaries {
		if sm != nil {
			out = append(out, *sm)
		}
	}
	return out, nil
}

// summarize returns nil when placeID no longer resolves
func (s *DiscoveryService) summarize(ctx context.Context, placeID string) (*domain.LocalitySummary, error) {
	var formatted string
	if meta, ok := s.cache.GetLocality(ctx, placeID); ok {
		formatted = meta.FormattedAddress
	} else {
		addr, err := s.resolver.FormattedAddress(ctx, placeID)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidLocation) {
				return nil, nil
			}
			return nil, err
		}
		formatted = addr
	}

	text, ok, err := s.resolver.DisplayText(ctx, placeID, formatted)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLocation) {
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		s.logger.Debug("Popular locality no longer resolves",
			zap.String("place_id", placeID),
		)
		return nil, nil
	}
	return &domain.LocalitySummary{PlaceID: placeID, DisplayText: text}, nil
}

func listingIDs(listings []domain.Listing) []string {
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	return ids
}
