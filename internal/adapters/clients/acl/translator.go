package acl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jsamuelsen/quotesync/internal/adapters/clients"
	"github.com/jsamuelsen/quotesync/internal/domain"
)

// maxResponseBody caps a decoded success response. The full posts
// collection of JSONPlaceholder is about 27 KiB.
const maxResponseBody = 8 << 20

// BaseAdapter holds the client and the service name used in errors.
type BaseAdapter struct {
	client      *clients.Client
	serviceName string
}

// NewBaseAdapter creates a base adapter.
func NewBaseAdapter(client *clients.Client, serviceName string) BaseAdapter {
	return BaseAdapter{
		client:      client,
		serviceName: serviceName,
	}
}

// ServiceName returns the name of the external service.
func (a *BaseAdapter) ServiceName() string {
	return a.serviceName
}

// Get performs a GET and returns the body of a 2xx response. The caller
// closes it. Any other outcome is returned as a domain error.
func (a *BaseAdapter) Get(ctx context.Context, path, operation string) (io.ReadCloser, error) {
	resp, err := a.client.Get(ctx, path)

	return a.checkResponse(resp, err, operation)
}

// Post sends body as JSON and returns the body of a 2xx response.
func (a *BaseAdapter) Post(ctx context.Context, path string, body []byte, operation string) (io.ReadCloser, error) {
	resp, err := a.client.Post(ctx, path, body)

	return a.checkResponse(resp, err, operation)
}

func (a *BaseAdapter) checkResponse(resp *http.Response, err error, operation string) (io.ReadCloser, error) {
	if err != nil {
		return nil, MapHTTPError(nil, err, a.serviceName, operation)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()

		return nil, MapHTTPError(resp, nil, a.serviceName, operation)
	}

	return resp.Body, nil
}

// DecodeResponse decodes a JSON body into T and closes it. A body that
// is not the expected JSON is the source misbehaving, so it is reported
// as an UnavailableError for serviceName.
func DecodeResponse[T any](body io.ReadCloser, serviceName string) (T, error) {
	var result T

	if body == nil {
		return result, domain.NewUnavailableError(serviceName, "empty response body")
	}
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(io.LimitReader(body, maxResponseBody)).Decode(&result); err != nil {
		return result, fmt.Errorf("%w: %w",
			domain.NewUnavailableError(serviceName, "undecodable response"), err)
	}

	return result, nil
}

// Translator converts one external DTO into a domain value.
type Translator[External any, Domain any] func(ext *External) (Domain, error)

// TranslateSlice translates every item. Items that fail are left out and
// their errors joined; the caller decides whether a partial result is usable.
func TranslateSlice[E any, D any](items []E, translate Translator[E, D]) ([]D, error) {
	result := make([]D, 0, len(items))

	var errs []error

	for i := range items {
		translated, err := translate(&items[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}

		result = append(result, translated)
	}

	return result, errors.Join(errs...)
}
