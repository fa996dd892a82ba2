package search

import "errors"

var (
	// ErrUnknownEntityType is returned when a request names an entity
	// type that is not searchable.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrUnknownFacet is returned when a request carries a facet name
	// that is not in the catalog. Unknown facets are rejected, never
	// silently ignored.
	ErrUnknownFacet = errors.New("unknown facet")

	// ErrInvalidSort is returned when the requested sort column is not
	// whitelisted.
	ErrInvalidSort = errors.New("invalid sort column")

	// ErrInvalidPagination is returned for negative offsets or limits.
	ErrInvalidPagination = errors.New("invalid pagination")

	// ErrAccessDenied is returned when the requester identity cannot be
	// resolved. Authorization fails closed.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnavailable is returned when the backing store fails during a
	// search. The caller may retry.
	ErrUnavailable = errors.New("search temporarily unavailable")
)
