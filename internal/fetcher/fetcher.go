// Package fetcher provides the rate-limited, retrying HTTP client every
// collector and connector routes outbound traffic through.
package fetcher

import (
	"context"
	"io"
)

// Fetcher abstracts rate-limited HTTP access for collectors.
type Fetcher interface {
	// Get fetches the URL and returns the response body. The caller owns
	// closing the reader.
	Get(ctx context.Context, source, rawURL string, headers map[string]string) (io.ReadCloser, error)

	// GetJSON fetches the URL and decodes the JSON body into out.
	GetJSON(ctx context.Context, source, rawURL string, headers map[string]string, out any) error

	// Head performs a HEAD request and reports whether the endpoint
	// answered with a non-5xx status. Used by health checks.
	Head(ctx context.Context, source, rawURL string) error
}
