package resolver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/places"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockPlacesLookup struct {
	mock.Mock
}

func (m *MockPlacesLookup) Details(ctx context.Context, placeID string) (*places.PlaceDetails, error) {
	args := m.Called(ctx, placeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*places.PlaceDetails), args.Error(1)
}

func (m *MockPlacesLookup) Autocomplete(ctx context.Context, input, typeFilter string) ([]domain.PlaceCandidate, error) {
	args := m.Called(ctx, input, typeFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PlaceCandidate), args.Error(1)
}

func brooklyn() *places.PlaceDetails {
	return &places.PlaceDetails{
		PlaceID:          "canonical-id",
		Name:             "Brooklyn",
		FormattedAddress: "Brooklyn, NY, USA",
		AddressComponents: []domain.AddressComponent{
			{LongName: "Brooklyn", ShortName: "Brooklyn", Types: []string{"sublocality", "political"}},
		},
		Viewport: &domain.BoundingBox{North: 40.74, South: 40.57, East: -73.83, West: -74.04},
	}
}

func TestResolve_Success(t *testing.T) {
	lookup := new(MockPlacesLookup)
	lookup.On("Details", mock.Anything, "bk").Return(brooklyn(), nil)

	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	loc, err := r.Resolve(context.Background(), domain.Suggestion{PlaceID: "bk", Description: "Brooklyn"})
	require.NoError(t, err)
	assert.Equal(t, "bk", loc.PlaceID)
	assert.Equal(t, "Brooklyn, NY, USA", loc.FormattedAddress)
	assert.Equal(t, 40.74, loc.BoundingBox.North)
	assert.Len(t, loc.AddressComponents, 1)
	assert.Equal(t, fixed, loc.RefreshedAt)
	lookup.AssertNumberOfCalls(t, "Details", 1)
}

func TestResolve_NoGeometry(t *testing.T) {
	lookup := new(MockPlacesLookup)
	d := brooklyn()
	d.Viewport = nil
	lookup.On("Details", mock.Anything, "bk").Return(d, nil)

	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())
	_, err := r.Resolve(context.Background(), domain.Suggestion{PlaceID: "bk"})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)
}

func TestResolve_UpstreamErrorPropagates(t *testing.T) {
	lookup := new(MockPlacesLookup)
	lookup.On("Details", mock.Anything, "bk").Return(nil, fmt.Errorf("%w: OVER_QUERY_LIMIT", domain.ErrUpstreamLookup))

	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())
	_, err := r.Resolve(context.Background(), domain.Suggestion{PlaceID: "bk"})
	assert.ErrorIs(t, err, domain.ErrUpstreamLookup)
}

func TestResolve_EmptyPlaceID(t *testing.T) {
	lookup := new(MockPlacesLookup)
	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())
	_, err := r.Resolve(context.Background(), domain.Suggestion{})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)
	lookup.AssertNotCalled(t, "Details", mock.Anything, mock.Anything)
}

func TestResolve_FallsBackToSuggestionText(t *testing.T) {
	lookup := new(MockPlacesLookup)
	d := brooklyn()
	d.FormattedAddress = ""
	lookup.On("Details", mock.Anything, "bk").Return(d, nil)

	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())
	loc, err := r.Resolve(context.Background(), domain.Suggestion{PlaceID: "bk", Description: "Brooklyn, NY"})
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn, NY", loc.FormattedAddress)
}

func TestDisplayText(t *testing.T) {
	lookup := new(MockPlacesLookup)
	lookup.On("Autocomplete", mock.Anything, "Brooklyn, NY, USA", "(regions)").Return([]domain.PlaceCandidate{
		{PlaceID: "other", Description: "Brooklyn Heights"},
		{PlaceID: "bk", Description: "Brooklyn, NY, USA"},
	}, nil)

	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())

	text, ok, err := r.DisplayText(context.Background(), "bk", "Brooklyn, NY, USA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Brooklyn, NY, USA", text)

	_, ok, err = r.DisplayText(context.Background(), "gone", "Brooklyn, NY, USA")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = r.DisplayText(context.Background(), "bk", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFormattedAddress(t *testing.T) {
	lookup := new(MockPlacesLookup)
	lookup.On("Details", mock.Anything, "bk").Return(brooklyn(), nil)

	r := NewLocalityResolver(lookup, "(regions)", zap.NewNop())
	addr, err := r.FormattedAddress(context.Background(), "bk")
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn, NY, USA", addr)
}
