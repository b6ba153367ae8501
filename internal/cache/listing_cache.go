package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/metrics"

	"go.uber.org/zap"
)

// ListingCache best-effort cache of listings by id and locality result sets
// by place id. Backend failures are logged and reported as misses; no method
// returns an error.
type ListingCache struct {
	backend     Backend
	keys        keySpace
	localityTTL time.Duration
	guard       guard
	index       *LocalityIndex
	logger      *zap.Logger
}

// DefaultLocalityTTL applied when Config.LocalityTTL is not positive
const DefaultLocalityTTL = 24 * time.Hour

func NewListingCache(backend Backend, cfg Config, logger *zap.Logger) *ListingCache {
	if cfg.LocalityTTL <= 0 {
		cfg.LocalityTTL = DefaultLocalityTTL
	}
	keys := keySpace{prefix: cfg.KeyPrefix}
	g := guard{opTimeout: cfg.OpTimeout, logger: logger}
	return &ListingCache{
		backend:     backend,
		keys:        keys,
		localityTTL: cfg.LocalityTTL,
		guard:       g,
		index:       newLocalityIndex(backend, keys, cfg.LocalityTTL, g, logger),
		logger:      logger,
	}
}

// GetListing returns the cached listing, ok is false on miss
func (c *ListingCache) GetListing(ctx context.Context, id string) (*domain.Listing, bool) {
	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()

	raw, err := c.backend.Get(opCtx, c.keys.listing(id))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			metrics.CacheLookupsTotal.WithLabelValues("listing", "miss").Inc()
		} else {
			metrics.CacheLookupsTotal.WithLabelValues("listing", "error").Inc()
			c.guard.swallow("get_listing", err, zap.String("listing_id", id))
		}
		return nil, false
	}

	var l domain.Listing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("listing", "error").Inc()
		c.guard.swallow("decode_listing", err, zap.String("listing_id", id))
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("listing", "hit").Inc()
	return &l, true
}

// PutListing stores the listing without expiry; it is replaced or removed on mutation
func (c *ListingCache) PutListing(ctx context.Context, listing *domain.Listing) {
	data, err := json.Marshal(listing)
	if err != nil {
		c.guard.swallow("encode_listing", err, zap.String("listing_id", listing.ID))
		return
	}

	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()
	if err := c.backend.Set(opCtx, c.keys.listing(listing.ID), string(data), 0); err != nil {
		c.guard.swallow("put_listing", err, zap.String("listing_id", listing.ID))
	}
}

// InvalidateListing drops the listing entry only; locality sets are untouched
func (c *ListingCache) InvalidateListing(ctx context.Context, id string) {
	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()
	if err := c.backend.Del(opCtx, c.keys.listing(id)); err != nil {
		c.guard.swallow("invalidate_listing", err, zap.String("listing_id", id))
	}
}

// GetLocality returns cached locality metadata without the member ids
func (c *ListingCache) GetLocality(ctx context.Context, placeID string) (*domain.Locality, bool) {
	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()
	loc, err := readLocalityMeta(opCtx, c.backend, c.keys, c.guard, placeID)
	if err != nil {
		return nil, false
	}
	return loc, true
}

// GetLocalityResultSet returns the locality with its ordered listing ids.
// A locality with no listings is a hit with an empty id list.
func (c *ListingCache) GetLocalityResultSet(ctx context.Context, placeID string) (*domain.Locality, bool) {
	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()

	loc, err := readLocalityMeta(opCtx, c.backend, c.keys, c.guard, placeID)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("locality", "miss").Inc()
		return nil, false
	}

	ids, err := c.backend.ZRange(opCtx, c.keys.localityMembers(placeID))
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("locality", "error").Inc()
		c.guard.swallow("get_locality_members", err, zap.String("place_id", placeID))
		return nil, false
	}
	if ids == nil {
		ids = []string{}
	}
	loc.ListingIDs = ids
	metrics.CacheLookupsTotal.WithLabelValues("locality", "hit").Inc()
	return loc, true
}

// PutLocalityResultSet replaces the locality's metadata and members in one
// transaction and records the listing and component index entries for it.
func (c *ListingCache) PutLocalityResultSet(ctx context.Context, locality domain.Locality, listingIDs []string) {
	meta := locality
	meta.ListingIDs = nil
	data, err := json.Marshal(meta)
	if err != nil {
		c.guard.swallow("encode_locality", err, zap.String("place_id", locality.PlaceID))
		return
	}

	placeID := locality.PlaceID
	ids := dedupe(listingIDs)
	members := make([]ScoredMember, len(ids))
	for i, id := range ids {
		members[i] = ScoredMember{Member: id, Score: float64(i)}
	}
	componentKeys := domain.ComponentKeys(locality.AddressComponents)

	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()
	err = c.backend.Atomic(opCtx, func(tx Tx) {
		tx.Set(c.keys.localityMeta(placeID), string(data), c.localityTTL)
		tx.Del(c.keys.localityMembers(placeID))
		if len(members) > 0 {
			tx.ZAdd(c.keys.localityMembers(placeID), members...)
			tx.Expire(c.keys.localityMembers(placeID), c.localityTTL)
		}
		for _, id := range ids {
			tx.SAdd(c.keys.listingLocalities(id), placeID)
		}
		for _, k := range componentKeys {
			tx.SAdd(c.keys.componentLocalities(k), placeID)
		}
		if len(componentKeys) == 0 {
			tx.SAdd(c.keys.componentlessLocalities(), placeID)
		}
	})
	if err != nil {
		c.guard.swallow("put_locality", err, zap.String("place_id", placeID), zap.Int("listings", len(ids)))
	}
}

// RemoveFromLocality prunes ids from one locality result set
func (c *ListingCache) RemoveFromLocality(ctx context.Context, placeID string, listingIDs ...string) {
	if len(listingIDs) == 0 {
		return
	}
	opCtx, cancel := c.guard.ctx(ctx)
	defer cancel()
	err := c.backend.Atomic(opCtx, func(tx Tx) {
		tx.ZRem(c.keys.localityMembers(placeID), listingIDs...)
		for _, id := range listingIDs {
			tx.SRem(c.keys.listingLocalities(id), placeID)
		}
	})
	if err != nil {
		c.guard.swallow("prune_locality", err, zap.String("place_id", placeID))
	}
}

// AddToMatchingLocalities see LocalityIndex
func (c *ListingCache) AddToMatchingLocalities(ctx context.Context, listing *domain.Listing) []string {
	return c.index.AddToMatchingLocalities(ctx, listing)
}

// RemoveFromAllLocalities see LocalityIndex
func (c *ListingCache) RemoveFromAllLocalities(ctx context.Context, listingID string) []string {
	return c.index.RemoveFromAllLocalities(ctx, listingID)
}

// readLocalityMeta returns ErrCacheMiss when the locality is not cached;
// other errors are already logged.
func readLocalityMeta(ctx context.Context, backend Backend, keys keySpace, g guard, placeID string) (*domain.Locality, error) {
	raw, err := backend.Get(ctx, keys.localityMeta(placeID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			g.swallow("get_locality", err, zap.String("place_id", placeID))
		}
		return nil, err
	}
	var loc domain.Locality
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		g.swallow("decode_locality", err, zap.String("place_id", placeID))
		return nil, err
	}
	return &loc, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
