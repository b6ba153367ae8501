package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/metrics"
	"listing-discovery/internal/repository"

	"go.uber.org/zap"
)

// Event types published by the listing CRUD layer
const (
	EventListingCreated = "listing.created"
	EventListingUpdated = "listing.updated"
	EventListingDeleted = "listing.deleted"
)

// ErrMalformedEvent marks events that can never be applied, however often
// they are retried
var ErrMalformedEvent = errors.New("malformed listing event")

// ListingEvent one listing mutation. Listing may be omitted for created and
// updated events; it is then loaded from the store.
type ListingEvent struct {
	EventType string          `json:"event_type"`
	ListingID string          `json:"listing_id"`
	Listing   *domain.Listing `json:"listing,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ListingHooks cache maintenance entry points
type ListingHooks interface {
	OnListingCreated(ctx context.Context, listing *domain.Listing)
	OnListingUpdated(ctx context.Context, listing *domain.Listing)
	OnListingDeleted(ctx context.Context, listingID string)
}

// Dispatcher routes listing events to the hooks
type Dispatcher struct {
	hooks  ListingHooks
	store  repository.GeoStore
	logger *zap.Logger
}

func NewDispatcher(hooks ListingHooks, store repository.GeoStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		hooks:  hooks,
		store:  store,
		logger: logger,
	}
}

// DispatchJSON decodes payload as a ListingEvent and dispatches it
func (d *Dispatcher) DispatchJSON(ctx context.Context, payload []byte) error {
	var ev ListingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.EventsProcessedTotal.WithLabelValues("unknown", "decode_error").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return d.Dispatch(ctx, ev)
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev ListingEvent) error {
	err := d.dispatch(ctx, ev)
	metrics.EventsProcessedTotal.WithLabelValues(ev.EventType, metrics.Outcome(err)).Inc()
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, ev ListingEvent) error {
	id := ev.ListingID
	if id == "" && ev.Listing != nil {
		id = ev.Listing.ID
	}
	if id == "" {
		return fmt.Errorf("%w: no listing id", ErrMalformedEvent)
	}

	d.logger.Debug("Processing listing event",
		zap.String("event_type", ev.EventType),
		zap.String("listing_id", id),
	)

	switch ev.EventType {
	case EventListingCreated, EventListingUpdated:
		listing := ev.Listing
		if listing == nil {
			l, err := d.store.Get(ctx, id)
			if err != nil {
				if errors.Is(err, domain.ErrListingNotFound) {
					// deleted since the event was published
					d.hooks.OnListingDeleted(ctx, id)
					return nil
				}
				return fmt.Errorf("failed to load listing %s: %w", id, err)
			}
			listing = l
		}
		if ev.EventType == EventListingCreated {
			d.hooks.OnListingCreated(ctx, listing)
		} else {
			d.hooks.OnListingUpdated(ctx, listing)
		}
		return nil

	case EventListingDeleted:
		d.hooks.OnListingDeleted(ctx, id)
		return nil

	default:
		d.logger.Warn("Unknown listing event type",
			zap.String("event_type", ev.EventType),
			zap.String("listing_id", id),
		)
		return nil
	}
}
