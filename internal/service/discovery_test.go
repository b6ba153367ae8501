package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"listing-discovery/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSearch_ColdCacheQueriesStoreAndCaches(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	a := env.seed(t, "a", inBrooklyn, compBrooklyn, compNYC, compNYState)
	b := env.seed(t, "b", inBrooklyn, compBrooklyn, compNYC, compNYState)
	env.seed(t, "queens", inQueens, compQueens, compNYC, compNYState)

	res, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk", Description: "Brooklyn"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Listings))
	assert.Equal(t, a, res.Listings[0])
	assert.Equal(t, b.Rent, res.Listings[1].Rent)
	assert.Equal(t, "bk", res.Locality.PlaceID)
	assert.Equal(t, int64(1), env.store.boxQueries.Load())

	assert.Equal(t, 24*time.Hour, env.mr.TTL("tc_locality_bk"))
	cached, ok := env.cache.GetLocalityResultSet(ctx, "bk")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, cached.ListingIDs)

	again, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	assert.Equal(t, res.Listings, again.Listings)
	assert.Equal(t, int64(1), env.store.boxQueries.Load(), "warm search does not touch the store")
	assert.Equal(t, int64(0), env.store.gets.Load())
}

func TestSearch_BoxResultsOutsideLocalityComponentsAreExcluded(t *testing.T) {
	env := setupTestEnv(t)

	env.seed(t, "bk1", inBrooklyn, compBrooklyn, compNYState)
	// geocoded inside the Brooklyn viewport but attributed to Queens
	env.seed(t, "edge", inBrooklyn, compQueens, compNYState)

	res, err := env.discovery.Search(context.Background(), domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bk1"}, ids(res.Listings))
}

func TestSearch_SharedFillSurvivesLeaderCancel(t *testing.T) {
	env := setupTestEnv(t)
	env.seed(t, "a", inBrooklyn, compBrooklyn, compNYC, compNYState)

	gated := newGatedStore(env.store)
	svc := NewDiscoveryService(gated, env.resolver, env.cache, env.tracker, DiscoveryConfig{PopularLimit: 10, HydrateConcurrency: 4}, zap.NewNop())

	type outcome struct {
		res *domain.SearchResult
		err error
	}
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()
	leader := make(chan outcome, 1)
	go func() {
		res, err := svc.Search(leaderCtx, domain.Suggestion{PlaceID: "bk"})
		leader <- outcome{res, err}
	}()
	<-gated.entered

	follower := make(chan outcome, 1)
	go func() {
		res, err := svc.Search(context.Background(), domain.Suggestion{PlaceID: "bk"})
		follower <- outcome{res, err}
	}()
	// let the follower reach the in-flight fill
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	close(gated.release)

	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, []string{"a"}, ids(got.res.Listings))
	<-leader

	assert.Equal(t, int64(1), env.store.boxQueries.Load())
	cached, ok := env.cache.GetLocalityResultSet(context.Background(), "bk")
	require.True(t, ok, "fill still writes back after the leader is gone")
	assert.Equal(t, []string{"a"}, cached.ListingIDs)
}

func TestSearch_DeletedListingDisappearsFromWarmCache(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.seed(t, "keep", inBrooklyn, compBrooklyn, compNYC, compNYState)
	env.seed(t, "main-st", inBrooklyn, compBrooklyn, compNYC, compNYState)

	_, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	_, err = env.discovery.Search(ctx, domain.Suggestion{PlaceID: "nyc"})
	require.NoError(t, err)
	queriesBefore := env.store.boxQueries.Load()

	require.NoError(t, env.listings.Delete(ctx, "main-st", "owner-1"))

	for _, placeID := range []string{"bk", "nyc"} {
		res, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: placeID})
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, ids(res.Listings), placeID)

		loc, ok := env.cache.GetLocalityResultSet(ctx, placeID)
		require.True(t, ok)
		assert.NotContains(t, loc.ListingIDs, "main-st")
	}
	_, ok := env.cache.GetListing(ctx, "main-st")
	assert.False(t, ok)
	assert.Equal(t, queriesBefore, env.store.boxQueries.Load(), "no re-query for unrelated listings")
}

func TestSearch_PopularityRanking(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	searches := map[string]int{"bk": 10, "nyc": 5, "qn": 1}
	for placeID, n := range searches {
		for i := 0; i < n; i++ {
			_, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: placeID})
			require.NoError(t, err)
		}
	}

	top := env.tracker.TopN(ctx, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "bk", top[0].PlaceID)
	assert.Equal(t, int64(10), top[0].Count)
	assert.Equal(t, "nyc", top[1].PlaceID)
}

func TestOnListingCreated_JoinsEveryMatchingLocality(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.seed(t, "old", inBrooklyn, compBrooklyn, compNYC, compNYState)
	env.seed(t, "queens", inQueens, compQueens, compNYC, compNYState)
	for _, placeID := range []string{"bk", "nyc", "qn"} {
		_, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: placeID})
		require.NoError(t, err)
	}
	queriesBefore := env.store.boxQueries.Load()

	created, err := env.listings.Create(ctx, "owner-2", CreateListingInput{
		Description: "Sunny 2BR near the park",
		Bedrooms:    2,
		Bathrooms:   1,
		Rent:        3100,
		AvailableAt: time.Now().Add(72 * time.Hour),
		Laundry:     domain.LaundryInUnit,
		Parking:     domain.ParkingUnavailable,
		Pets:        domain.PetsNotAllowed,
		Location: domain.Location{
			PlaceID:           "123-main-st",
			FormattedAddress:  "123 Main St, Brooklyn, NY",
			Point:             inBrooklyn,
			AddressComponents: []domain.AddressComponent{compBrooklyn, compNYC, compNYState},
		},
	})
	require.NoError(t, err)

	bk, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", created.ID}, ids(bk.Listings))

	nyc, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "nyc"})
	require.NoError(t, err)
	assert.Contains(t, ids(nyc.Listings), created.ID)

	qn, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "qn"})
	require.NoError(t, err)
	assert.NotContains(t, ids(qn.Listings), created.ID)

	assert.Equal(t, queriesBefore, env.store.boxQueries.Load())
}

func TestSearch_SelfHealsEvictedListing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.seed(t, "a", inBrooklyn, compBrooklyn, compNYState)
	env.seed(t, "b", inBrooklyn, compBrooklyn, compNYState)
	_, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)

	env.mr.Del("tc_listing_b")

	res, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	require.Len(t, res.Listings, 2)
	assert.Equal(t, "b", res.Listings[1].ID)
	assert.Equal(t, 2000, res.Listings[1].Rent, "hydrated from the store, not a partial entry")
	assert.Equal(t, int64(1), env.store.gets.Load())
	assert.True(t, env.mr.Exists("tc_listing_b"), "listing re-cached")
}

func TestSearch_PrunesIdsGoneFromStore(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.seed(t, "a", inBrooklyn, compBrooklyn, compNYState)
	env.seed(t, "ghost", inBrooklyn, compBrooklyn, compNYState)
	_, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)

	// removed behind the cache's back
	require.NoError(t, env.store.GeoStore.Delete(ctx, "ghost"))
	env.mr.Del("tc_listing_ghost")

	res, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res.Listings))

	loc, ok := env.cache.GetLocalityResultSet(ctx, "bk")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, loc.ListingIDs)
}

func TestSearch_CacheUnavailableFallsBackToStore(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.seed(t, "a", inBrooklyn, compBrooklyn, compNYState)
	env.seed(t, "b", inBrooklyn, compBrooklyn, compNYState)
	env.mr.Close()

	for i := 1; i <= 2; i++ {
		res, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(res.Listings))
		assert.Equal(t, int64(i), env.store.boxQueries.Load())
	}

	assert.NotPanics(t, func() {
		l := domain.Listing{ID: "c", Location: domain.Location{AddressComponents: []domain.AddressComponent{compBrooklyn}}}
		env.discovery.OnListingCreated(ctx, &l)
		env.discovery.OnListingUpdated(ctx, &l)
		env.discovery.OnListingDeleted(ctx, "c")
	})

	popular, err := env.discovery.PopularLocalities(ctx)
	require.NoError(t, err)
	assert.Empty(t, popular)
}

func TestSearch_InvalidLocation(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.discovery.Search(context.Background(), domain.Suggestion{PlaceID: "atlantis"})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)
	assert.Equal(t, int64(0), env.store.boxQueries.Load())
	assert.Empty(t, env.tracker.TopN(context.Background(), 10), "unresolved searches are not counted")
}

func TestSearch_StoreErrorPropagates(t *testing.T) {
	env := setupTestEnv(t)
	env.store.failWith = fmt.Errorf("%w: connection reset", domain.ErrStore)

	_, err := env.discovery.Search(context.Background(), domain.Suggestion{PlaceID: "bk"})
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.True(t, domain.IsRetryable(err))

	_, ok := env.cache.GetLocalityResultSet(context.Background(), "bk")
	assert.False(t, ok, "failed fills are not cached")
}

func TestSearch_EmptyLocalityIsCached(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	res, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	assert.Empty(t, res.Listings)

	_, err = env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.store.boxQueries.Load())
}

func TestPopularLocalities(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for placeID, n := range map[string]int{"nyc": 3, "bk": 5, "qn": 4} {
		for i := 0; i < n; i++ {
			env.tracker.RecordSearch(ctx, placeID)
		}
	}
	// bk metadata cached, nyc resolved again, qn has no matching suggestion
	_, err := env.discovery.Search(ctx, domain.Suggestion{PlaceID: "bk"})
	require.NoError(t, err)

	popular, err := env.discovery.PopularLocalities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.LocalitySummary{
		{PlaceID: "bk", DisplayText: "Brooklyn, NY, USA"},
		{PlaceID: "nyc", DisplayText: "New York, NY, USA"},
	}, popular)
}

func TestPopularLocalities_DropsUnresolvablePlaces(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.tracker.RecordSearch(ctx, "retired-place")
	env.tracker.RecordSearch(ctx, "nyc")

	popular, err := env.discovery.PopularLocalities(ctx)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, "nyc", popular[0].PlaceID)
}
