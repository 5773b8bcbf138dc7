package ports

import "net/http"

// HTTPClient defines the interface for making HTTP requests.
// Gateway adapters take this instead of *http.Client so transport can be
// mocked in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
