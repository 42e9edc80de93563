package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
// Non-2xx responses are not errors; an error means the request never completed.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	// Post sends body serialized as JSON.
	Post(ctx context.Context, url string, headers map[string]string, body any) (Response, error)
}
