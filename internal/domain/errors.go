package domain

import "errors"

var (
	// ErrInvalidCatalog is returned when the brand catalog fails validation
	ErrInvalidCatalog = errors.New("invalid brand catalog")

	// ErrTabNotFound is returned when a tab id is not open in the host
	ErrTabNotFound = errors.New("tab not found")

	// ErrNotProductPage is returned when a page has no product title
	ErrNotProductPage = errors.New("not a product page")

	// ErrCircuitOpen is returned while the fetcher refuses requests
	ErrCircuitOpen = errors.New("circuit breaker is open")
)
