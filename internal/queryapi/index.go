package queryapi

import (
	"github.com/jobfeed/jobfeed/internal/store"
)

// SelectIndex picks the access path for a filter: company first, then category, then country, and a full scan
// when none is given. Filters not served by the chosen index end up in the residual predicate.
func SelectIndex(filter *Filter) (store.IndexName, string, store.Residual) {
	residual := store.Residual{Remote: filter.Remote}
	switch {
	case filter.Company != "":
		residual.Category = filter.Category
		residual.Country = filter.Country
		return store.IndexCompany, filter.Company, residual
	case filter.Category != "":
		residual.Country = filter.Country
		return store.IndexCategory, filter.Category, residual
	case filter.Country != "":
		return store.IndexCountry, filter.Country, residual
	}
	return store.IndexFullScan, "", residual
}
