package cache

import "listing-discovery/internal/domain"

// MatchesLocality reports whether a listing belongs to a locality: every
// canonical component of the locality must appear among the listing's
// components. A locality without components matches every listing.
func MatchesLocality(locality, listing []domain.AddressComponent) bool {
	if len(locality) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(listing))
	for _, k := range domain.ComponentKeys(listing) {
		have[k] = struct{}{}
	}
	for _, k := range domain.ComponentKeys(locality) {
		if _, ok := have[k]; !ok {
			return false
		}
	}
	return true
}
