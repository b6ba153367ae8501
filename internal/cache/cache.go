package cache

import (
	"context"
	"strconv"
	"time"

	"listing-discovery/internal/metrics"

	"go.uber.org/zap"
)

// Config cache settings
type Config struct {
	KeyPrefix   string
	LocalityTTL time.Duration
	OpTimeout   time.Duration
}

// keySpace builds every cache key from one prefix
type keySpace struct {
	prefix string
}

func (k keySpace) listing(id string) string { return k.prefix + "listing_" + id }

// listingLocalities reverse index: place ids whose result set holds the listing
func (k keySpace) listingLocalities(id string) string {
	return k.prefix + "listing_" + id + ":localities"
}

func (k keySpace) localityMeta(placeID string) string { return k.prefix + "locality_" + placeID }

func (k keySpace) localityMembers(placeID string) string {
	return k.prefix + "locality_" + placeID + ":listings"
}

// componentLocalities place ids whose locality carries the component
func (k keySpace) componentLocalities(componentKey string) string {
	return k.prefix + "component_" + componentKey + ":localities"
}

// componentlessLocalities place ids whose locality has no components; they
// match every listing
func (k keySpace) componentlessLocalities() string {
	return k.prefix + "componentless:localities"
}

func (k keySpace) popularity() string { return k.prefix + "popular_localities" }

// guard bounds backend calls and turns failures into logged misses
type guard struct {
	opTimeout time.Duration
	logger    *zap.Logger
}

func (g guard) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if g.opTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, g.opTimeout)
}

func (g guard) swallow(op string, err error, fields ...zap.Field) {
	metrics.CacheErrorsTotal.WithLabelValues(op).Inc()
	g.logger.Debug("Cache operation failed, treating as miss",
		append(fields, zap.String("op", op), zap.Error(err))...,
	)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
