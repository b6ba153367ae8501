package repository

import (
	"context"
	"testing"
	"time"

	"listing-discovery/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGeoStore_QueryByBoundingBox(t *testing.T) {
	store := NewMemoryGeoStore()
	ctx := context.Background()

	in := sampleListing("in")
	in.CreatedAt = time.Unix(2, 0)
	edge := sampleListing("edge")
	edge.Location.Point = domain.GeoPoint{Lat: 40.74, Lng: -73.83}
	edge.CreatedAt = time.Unix(1, 0)
	out := sampleListing("out")
	out.Location.Point = domain.GeoPoint{Lat: 40.80, Lng: -73.95}

	for _, l := range []domain.Listing{in, edge, out} {
		l := l
		require.NoError(t, store.Put(ctx, &l))
	}

	got, err := store.QueryByBoundingBox(ctx, domain.BoundingBox{North: 40.74, South: 40.57, East: -73.83, West: -74.04})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].ID)
	assert.Equal(t, "in", got[1].ID)
}

func TestMemoryGeoStore_Antimeridian(t *testing.T) {
	store := NewMemoryGeoStore()
	ctx := context.Background()

	fiji := sampleListing("fiji")
	fiji.Location.Point = domain.GeoPoint{Lat: -17, Lng: 179.5}
	require.NoError(t, store.Put(ctx, &fiji))

	got, err := store.QueryByBoundingBox(ctx, domain.BoundingBox{North: -15, South: -20, East: -178, West: 177})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryGeoStore_CRUD(t *testing.T) {
	store := NewMemoryGeoStore()
	ctx := context.Background()

	l := sampleListing("l1")
	require.NoError(t, store.Put(ctx, &l))

	got, err := store.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", got.OwnerID)

	dup := sampleListing("l2")
	dup.Location.PlaceID = l.Location.PlaceID
	assert.ErrorIs(t, store.Put(ctx, &dup), domain.ErrDuplicateListing)

	owned, err := store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	require.NoError(t, store.Delete(ctx, "l1"))
	_, err = store.Get(ctx, "l1")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "l1"), domain.ErrListingNotFound)
}

func TestMemoryGeoStore_ExistsAtLocation(t *testing.T) {
	store := NewMemoryGeoStore()
	ctx := context.Background()

	withApt := sampleListing("a")
	withApt.Location.PlaceID = "p1"
	withApt.Apt = "1A"
	require.NoError(t, store.Put(ctx, &withApt))

	ok, _ := store.ExistsAtLocation(ctx, "p1", "1A")
	assert.True(t, ok)
	ok, _ = store.ExistsAtLocation(ctx, "p1", "2B")
	assert.False(t, ok)
	ok, _ = store.ExistsAtLocation(ctx, "p1", "")
	assert.True(t, ok, "a listing without apt collides with every unit at the place")

	noApt := sampleListing("b")
	noApt.Location.PlaceID = "p2"
	require.NoError(t, store.Put(ctx, &noApt))
	ok, _ = store.ExistsAtLocation(ctx, "p2", "3C")
	assert.True(t, ok, "an existing listing without apt collides with any new unit")
}

func TestTimedGeoStore_PropagatesCancellation(t *testing.T) {
	store := NewTimedGeoStore(NewMemoryGeoStore(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)

	l := sampleListing("l1")
	require.NoError(t, store.Put(context.Background(), &l))
	got, err := store.Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "l1", got.ID)
}
