package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"listing-discovery/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pqUniqueViolation = "23505"

// Schema listings table. doc carries the full listing; the remaining columns
// exist for filtering and the address uniqueness index.
const Schema = `
CREATE TABLE IF NOT EXISTS listings (
	listing_id  TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	place_id    TEXT NOT NULL,
	apt         TEXT,
	lat         DOUBLE PRECISION NOT NULL,
	lng         DOUBLE PRECISION NOT NULL,
	doc         JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS listings_place_apt_uq ON listings (place_id, COALESCE(apt, ''));
CREATE INDEX IF NOT EXISTS listings_lat_lng_idx ON listings (lat, lng);
CREATE INDEX IF NOT EXISTS listings_owner_idx ON listings (owner_id);
`

// PostgresGeoStore GeoStore on PostgreSQL
type PostgresGeoStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresGeoStore(db *sql.DB, logger *zap.Logger) *PostgresGeoStore {
	return &PostgresGeoStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the listings table and indexes if missing
func (r *PostgresGeoStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", domain.ErrStore, err)
	}
	return nil
}

func (r *PostgresGeoStore) QueryByBoundingBox(ctx context.Context, box domain.BoundingBox) ([]domain.Listing, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}

	lngOp := "AND"
	if box.CrossesAntimeridian() {
		lngOp = "OR"
	}
	query := fmt.Sprintf(`
		SELECT doc
		FROM listings
		WHERE lat BETWEEN $1 AND $2
		  AND (lng >= $3 %s lng <= $4)
		ORDER BY created_at, listing_id
	`, lngOp)

	rows, err := r.db.QueryContext(ctx, query, box.South, box.North, box.West, box.East)
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
	defer rows.Close()

	return scanDocs(rows)
}

func (r *PostgresGeoStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM listings WHERE listing_id = $1`, id).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("%w: get listing: %v", domain.ErrStore, err)
	}

	var l domain.Listing
	if err := json.Unmarshal(doc, &l); err != nil {
		return nil, fmt.Errorf("%w: decode listing %s: %v", domain.ErrStore, id, err)
	}
	return &l, nil
}

func (r *PostgresGeoStore) Put(ctx context.Context, listing *domain.Listing) error {
	doc, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("%w: encode listing: %v", domain.ErrStore, err)
	}

	var apt sql.NullString
	if listing.Apt != "" {
		apt = sql.NullString{String: listing.Apt, Valid: true}
	}

	query := `
		INSERT INTO listings (listing_id, owner_id, place_id, apt, lat, lng, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (listing_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			place_id = EXCLUDED.place_id,
			apt = EXCLUDED.apt,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		listing.ID,
		listing.OwnerID,
		listing.Location.PlaceID,
		apt,
		listing.Location.Point.Lat,
		listing.Location.Point.Lng,
		doc,
		listing.CreatedAt,
		listing.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
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

func (r *PostgresGeoStore) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE listing_id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete listing: %v", domain.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete listing: %v", domain.ErrStore, err)
	}
	if n == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *PostgresGeoStore) ExistsAtLocation(ctx context.Context, placeID, apt string) (bool, error) {
	var exists bool
	var err error
	if apt == "" {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM listings WHERE place_id = $1)`,
			placeID,
		).Scan(&exists)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM listings WHERE place_id = $1 AND (apt = $2 OR apt IS NULL))`,
			placeID, apt,
		).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("%w: check listing exists: %v", domain.ErrStore, err)
	}
	return exists, nil
}

func (r *PostgresGeoStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT doc FROM listings WHERE owner_id = $1 ORDER BY created_at, listing_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list by owner: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	return scanDocs(rows)
}

func scanDocs(rows *sql.Rows) ([]domain.Listing, error) {
	listings := []domain.Listing{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%w: scan listing: %v", domain.ErrStore, err)
		}
		var l domain.Listing
		if err := json.Unmarshal(doc, &l); err != nil {
			return nil, fmt.Errorf("%w: decode listing: %v", domain.ErrStore, err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate listings: %v", domain.ErrStore, err)
	}
	return listings, nil
}
