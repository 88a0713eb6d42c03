package dictload

import (
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/dictload/internal/fetch"
	"github.com/jmgilman/go/dictload/internal/store"
)

// Error codes produced by this package.
const (
	// CodeNetwork marks transport failures and non-success HTTP statuses.
	CodeNetwork = platformerrors.CodeNetwork
	// CodeDecompression marks a response body that is not a valid gzip stream.
	CodeDecompression = fetch.CodeDecompression
	// CodeStoreUnavailable marks store faults. Loaders absorb these.
	CodeStoreUnavailable = store.CodeStoreUnavailable
)

// IsNetworkError reports whether err is a NetworkError.
func IsNetworkError(err error) bool {
	return platformerrors.GetCode(err) == CodeNetwork
}

// IsDecompressionError reports whether err is a DecompressionError.
func IsDecompressionError(err error) bool {
	return platformerrors.GetCode(err) == CodeDecompression
}

// StatusCode returns the HTTP status carried by a NetworkError, or 0 when
// err has none (transport failures, other errors).
func StatusCode(err error) int {
	return fetch.StatusCode(err)
}
