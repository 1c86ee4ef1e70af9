package docproxy

import "errors"

var (
	// ErrNilFetcher is returned when a Proxy is constructed without a Fetcher.
	ErrNilFetcher = errors.New("fetcher must not be nil")

	// ErrNilMutation is returned when Change is called with a nil Mutation.
	ErrNilMutation = errors.New("mutation must not be nil")

	// ErrNilFetcherFactory is returned when a Registry is constructed without a FetcherFactory.
	ErrNilFetcherFactory = errors.New("fetcher factory must not be nil")

	// ErrEmptyDocumentName is returned when a Registry is asked for a proxy without a document name.
	ErrEmptyDocumentName = errors.New("document name must not be empty")

	// ErrEmptyProxyName is returned when WithName is given an empty name.
	ErrEmptyProxyName = errors.New("proxy name must not be empty")

	// ErrInvalidFetchTimeout is returned when WithFetchTimeout is given a non-positive duration.
	ErrInvalidFetchTimeout = errors.New("fetch timeout must be positive")

	// ErrFetchingDocumentFailed wraps the error of a failed fetch.
	// Every caller of the drain cycle that triggered the fetch receives it.
	ErrFetchingDocumentFailed = errors.New("fetching document failed")

	// ErrFetcherPanicked is joined into the fetch error when the Fetcher panicked.
	ErrFetcherPanicked = errors.New("fetcher panicked")

	// ErrMutationFailed wraps the error of a failed mutation.
	// Only the caller that supplied the mutation receives it.
	ErrMutationFailed = errors.New("mutation failed")

	// ErrMutationPanicked is joined into the mutation error when the Mutation panicked.
	ErrMutationPanicked = errors.New("mutation panicked")
)
