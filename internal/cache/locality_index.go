package cache

import (
	"context"
	"errors"
	"time"

	"listing-discovery/internal/domain"

	"go.uber.org/zap"
)

// LocalityIndex keeps cached locality result sets in step with listing
// mutations. Two Redis sets replace a scan over every cached locality:
//
//	component_<key>:localities  place ids whose locality carries the component
//	componentless:localities    place ids whose locality has no components
//	listing_<id>:localities     place ids whose result set holds the listing
//
// Membership writes use ZADD NX on the locality's sorted set, so concurrent
// additions never clobber each other and re-adding is a no-op.
type LocalityIndex struct {
	backend     Backend
	keys        keySpace
	localityTTL time.Duration
	guard       guard
	logger      *zap.Logger
	now         func() time.Time
}

func newLocalityIndex(backend Backend, keys keySpace, ttl time.Duration, g guard, logger *zap.Logger) *LocalityIndex {
	return &LocalityIndex{
		backend:     backend,
		keys:        keys,
		localityTTL: ttl,
		guard:       g,
		logger:      logger,
		now:         time.Now,
	}
}

// AddToMatchingLocalities appends the listing to every cached locality it
// matches and refreshes that locality's TTL. Returns the place ids written.
func (x *LocalityIndex) AddToMatchingLocalities(ctx context.Context, listing *domain.Listing) []string {
	componentKeys := domain.ComponentKeys(listing.Location.AddressComponents)
	indexKeys := make([]string, 0, len(componentKeys)+1)
	for _, k := range componentKeys {
		indexKeys = append(indexKeys, x.keys.componentLocalities(k))
	}
	indexKeys = append(indexKeys, x.keys.componentlessLocalities())

	opCtx, cancel := x.guard.ctx(ctx)
	candidates, err := x.backend.SUnion(opCtx, indexKeys...)
	cancel()
	if err != nil {
		x.guard.swallow("component_candidates", err, zap.String("listing_id", listing.ID))
		return nil
	}

	var matched, expired []string
	for _, placeID := range candidates {
		opCtx, cancel := x.guard.ctx(ctx)
		loc, err := readLocalityMeta(opCtx, x.backend, x.keys, x.guard, placeID)
		cancel()
		if err != nil {
			if errors.Is(err, ErrCacheMiss) {
				expired = append(expired, placeID)
			}
			continue
		}
		if MatchesLocality(loc.AddressComponents, listing.Location.AddressComponents) {
			matched = append(matched, placeID)
		}
	}

	if len(expired) > 0 {
		x.pruneComponentIndex(ctx, indexKeys, expired)
	}
	if len(matched) == 0 {
		return nil
	}

	score := float64(x.now().UnixMicro())
	opCtx, cancel = x.guard.ctx(ctx)
	defer cancel()
	err = x.backend.Atomic(opCtx, func(tx Tx) {
		for _, placeID := range matched {
			tx.ZAddNX(x.keys.localityMembers(placeID), ScoredMember{Member: listing.ID, Score: score})
			tx.Expire(x.keys.localityMembers(placeID), x.localityTTL)
			tx.Expire(x.keys.localityMeta(placeID), x.localityTTL)
		}
		tx.SAdd(x.keys.listingLocalities(listing.ID), matched...)
	})
	if err != nil {
		x.guard.swallow("add_to_localities", err, zap.String("listing_id", listing.ID))
		return nil
	}

	x.logger.Debug("Listing added to cached localities",
		zap.String("listing_id", listing.ID),
		zap.Strings("place_ids", matched),
	)
	return matched
}

// RemoveFromAllLocalities drops the listing from every cached locality that
// holds it. Returns the place ids touched.
func (x *LocalityIndex) RemoveFromAllLocalities(ctx context.Context, listingID string) []string {
	opCtx, cancel := x.guard.ctx(ctx)
	placeIDs, err := x.backend.SMembers(opCtx, x.keys.listingLocalities(listingID))
	cancel()
	if err != nil {
		x.guard.swallow("listing_localities", err, zap.String("listing_id", listingID))
		return nil
	}

	opCtx, cancel = x.guard.ctx(ctx)
	defer cancel()
	err = x.backend.Atomic(opCtx, func(tx Tx) {
		for _, placeID := range placeIDs {
			tx.ZRem(x.keys.localityMembers(placeID), listingID)
		}
		tx.Del(x.keys.listingLocalities(listingID))
	})
	if err != nil {
		x.guard.swallow("remove_from_localities", err, zap.String("listing_id", listingID))
		return nil
	}
	return placeIDs
}

// pruneComponentIndex forgets localities whose metadata has expired. A
// locality re-cached since the miss was observed keeps its index entries.
func (x *LocalityIndex) pruneComponentIndex(ctx context.Context, indexKeys, placeIDs []string) {
	for _, placeID := range placeIDs {
		opCtx, cancel := x.guard.ctx(ctx)
		_, err := x.backend.SRemUnlessExists(opCtx, x.keys.localityMeta(placeID), placeID, indexKeys...)
		cancel()
		if err != nil {
			x.guard.swallow("prune_component_index", err, zap.String("place_id", placeID))
			return
		}
	}
}
