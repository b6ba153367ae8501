package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/service"

	"go.uber.org/zap"
)

// Discovery read side used by DiscoveryHandler
type Discovery interface {
	Search(ctx context.Context, suggestion domain.Suggestion) (*domain.SearchResult, error)
	PopularLocalities(ctx context.Context) ([]domain.LocalitySummary, error)
}

// Listings owner-facing listing operations used by ListingHandler
type Listings interface {
	Create(ctx context.Context, ownerID string, in service.CreateListingInput) (*domain.Listing, error)
	Update(ctx context.Context, id, ownerID string, in service.UpdateListingInput) (*domain.Listing, error)
	SetPhoto(ctx context.Context, id, ownerID string, position int, url string) (*domain.Listing, error)
	ClearPhoto(ctx context.Context, id, ownerID string, position int) (*domain.Listing, error)
	Delete(ctx context.Context, id, ownerID string) error
	Get(ctx context.Context, id string) (*domain.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error)
	CheckAvailable(ctx context.Context, id string) error
}

var errMissingUser = errors.New("missing X-User-Id header")

// userID caller identity set by the upstream gateway
func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if id == "" {
		return "", errMissingUser
	}
	return id, nil
}

// ---------- discovery ----------

type DiscoveryHandler struct {
	discovery Discovery
	logger    *zap.Logger
}

func NewDiscoveryHandler(discovery Discovery, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{discovery: discovery, logger: logger}
}

// Search GET /api/v1/listings/search?placeId=...&description=...
func (h *DiscoveryHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestion := domain.Suggestion{
		PlaceID:     strings.TrimSpace(q.Get("placeId")),
		Description: q.Get("description"),
	}
	if suggestion.PlaceID == "" {
		writeError(w, fmt.Errorf("%w: placeId is required", domain.ErrInvalidLocation))
		return
	}

	result, err := h.discovery.Search(r.Context(), suggestion)
	if err != nil {
		h.logFailure("search failed", err, zap.String("place_id", suggestion.PlaceID))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// PopularLocalities GET /api/v1/localities/popular
func (h *DiscoveryHandler) PopularLocalities(w http.ResponseWriter, r *http.Request) {
	items, err := h.discovery.PopularLocalities(r.Context())
	if err != nil {
		h.logFailure("popular localities failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OkPage(items))
}

func (h *DiscoveryHandler) logFailure(msg string, err error, fields ...zap.Field) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		return
	}
	h.logger.Debug(msg, append(fields, zap.Error(err))...)
}

// ---------- listings ----------

type ListingHandler struct {
	listings Listings
	logger   *zap.Logger
}

func NewListingHandler(listings Listings, logger *zap.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logger}
}

// Create POST /api/v1/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.CreateListingInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeError(w, fmt.Errorf("%w: invalid body: %v", domain.ErrInvalidListing, err))
		return
	}
	l, err := h.listings.Create(r.Context(), owner, in)
	if err != nil {
		h.fail(w, "create listing failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(l))
}

// ListMine GET /api/v1/listings
func (h *ListingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.listings.ListByOwner(r.Context(), owner)
	if err != nil {
		h.fail(w, "list listings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, OkPage(items))
}

// Get GET /api/v1/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.listings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get listing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(l))
}

// Update PATCH /api/v1/listings/{id}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.UpdateListingInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeError(w, fmt.Errorf("%w: invalid body: %v", domain.ErrInvalidListing, err))
		return
	}
	l, err := h.listings.Update(r.Context(), r.PathValue("id"), owner, in)
	if err != nil {
		h.fail(w, "update listing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(l))
}

// Delete DELETE /api/v1/listings/{id}
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.listings.Delete(r.Context(), r.PathValue("id"), owner); err != nil {
		h.fail(w, "delete listing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"id": r.PathValue("id")}))
}

// CheckAvailable GET /api/v1/listings/{id}/availability
func (h *ListingHandler) CheckAvailable(w http.ResponseWriter, r *http.Request) {
	err := h.listings.CheckAvailable(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Ok(map[string]bool{"available": true}))
	case errors.Is(err, domain.ErrListingOccupied):
		writeJSON(w, http.StatusOK, Ok(map[string]bool{"available": false}))
	default:
		h.fail(w, "availability check failed", err)
	}
}

type photoBody struct {
	URL string `json:"url"`
}

// SetPhoto PUT /api/v1/listings/{id}/photos/{position}
func (h *ListingHandler) SetPhoto(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	position, err := photoPosition(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body photoBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, fmt.Errorf("%w: invalid body: %v", domain.ErrInvalidListing, err))
		return
	}
	l, err := h.listings.SetPhoto(r.Context(), r.PathValue("id"), owner, position, body.URL)
	if err != nil {
		h.fail(w, "set photo failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(l))
}

// ClearPhoto DELETE /api/v1/listings/{id}/photos/{position}
func (h *ListingHandler) ClearPhoto(w http.ResponseWriter, r *http.Request) {
	owner, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	position, err := photoPosition(r)
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := h.listings.ClearPhoto(r.Context(), r.PathValue("id"), owner, position)
	if err != nil {
		h.fail(w, "clear photo failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(l))
}

func photoPosition(r *http.Request) (int, error) {
	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		return 0, fmt.Errorf("%w: photo position must be a number", domain.ErrInvalidListing)
	}
	return position, nil
}

func (h *ListingHandler) fail(w http.ResponseWriter, msg string, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	writeError(w, err)
}
