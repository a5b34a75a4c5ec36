package jolokia

import "context"

// Transport sends single requests to an agent.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Batcher is implemented by transports that can send several requests in
// one round trip. Responses are returned in request order.
type Batcher interface {
	Bulk(ctx context.Context, reqs []Request) ([]*Response, error)
}

// Callback receives the responses of a registered request.
type Callback func(*Response)

// Watcher is implemented by transports that can poll registered requests.
type Watcher interface {
	Register(req Request, cb Callback) (int, error)
	Unregister(handle int) error
}

// Bulk sends reqs in one call when t supports batching and one by one otherwise.
func Bulk(ctx context.Context, t Transport, reqs []Request) ([]*Response, error) {
	if b, ok := t.(Batcher); ok {
		return b.Bulk(ctx, reqs)
	}
	responses := make([]*Response, 0, len(reqs))
	for _, req := range reqs {
		resp, err := t.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}
