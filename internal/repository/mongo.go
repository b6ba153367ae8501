package repository

import (
	"context"
	"errors"
	"fmt"

	"listing-discovery/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// mongoListing stores the point as a legacy [lng, lat] pair for the 2d index
type mongoListing struct {
	domain.Listing `bson:",inline"`
	Coords         []float64 `bson:"coords"`
}

// MongoGeoStore GeoStore on a MongoDB collection
type MongoGeoStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewMongoGeoStore(coll *mongo.Collection, logger *zap.Logger) *MongoGeoStore {
	return &MongoGeoStore{
		coll:   coll,
		logger: logger,
	}
}

// EnsureIndexes creates the 2d, owner and address uniqueness indexes
func (r *MongoGeoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "coords", Value: "2d"}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "location.place_id", Value: 1}, {Key: "apt", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: ensure indexes: %v", domain.ErrStore, err)
	}
	return nil
}

func boxFilter(box domain.BoundingBox) bson.M {
	within := func(west, east float64) bson.M {
		return bson.M{"coords": bson.M{"$geoWithin": bson.M{
			"$box": bson.A{bson.A{west, box.South}, bson.A{east, box.North}},
		}}}
	}
	if !box.CrossesAntimeridian() {
		return within(box.West, box.East)
	}
	return bson.M{"$or": bson.A{within(box.West, 180), within(-180, box.East)}}
}

func (r *MongoGeoStore) QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	listings, err := r.find(ctx, boxFilter(box))
	if err != nil {
		r.logger.Error("Failed to query listings by bounding box",
			zap.Float64("north", box.North),
			zap.Float64("south", box.South),
			zap.Float64("east", box.East),
			zap.Float64("west", box.West),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: query by bounding box: %v", domain.ErrStore, err)
	}
	return listings, nil
}

func (r *MongoGeoStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	var doc mongoListing
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("%w: get listing: %v", domain.ErrStore, err)
	}
	return &doc.Listing, nil
}

func (r *MongoGeoStore) Put(ctx context.Context, listing *domain.Listing) error {
	doc := mongoListing{
		Listing: *listing,
		Coords:  []float64{listing.Location.Point.Lng, listing.Location.Point.Lat},
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": listing.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateListing
		}
		r.logger.Error("Failed to upsert listing",
			zap.String("listing_id", listing.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: put listing: %v", domain.ErrStore, err)
	}
	return nil
}

func (r *MongoGeoStore) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("%w: delete listing: %v", domain.ErrStore, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *MongoGeoStore) ExistsAtLocation(ctx context.Context, placeID, apt string) (bool, error) {
	filter := bson.M{"location.place_id": placeID}
	if apt != "" {
		filter["$or"] = bson.A{
			bson.M{"apt": apt},
			bson.M{"apt": bson.M{"$exists": false}},
			bson.M{"apt": ""},
		}
	}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: check listing exists: %v", domain.ErrStore, err)
	}
	return n > 0, nil
}

func (r *MongoGeoStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	listings, err := r.find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("%w: list by owner: %v", domain.ErrStore, err)
	}
	return listings, nil
}

func (r *MongoGeoStore) find(ctx context.Context, filter bson.M) ([]domain.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	listings := []domain.Listing{}
	for cur.Next(ctx) {
		var doc mongoListing
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		listings = append(listings, doc.Listing)
	}
	return listings, cur.Err()
}
