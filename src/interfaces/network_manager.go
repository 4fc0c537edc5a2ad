package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests with potential proxy/retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with parameters.
	// Retries and backoff stop as soon as ctx is done, so a caller's
	// deadline bounds the whole attempt, not just one request.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
