package engine

import "context"

// Client is the transform service's view of an out-of-process compute
// engine: one request in, a stream of tagged responses out (spec.md §6).
type Client interface {
	// ExecuteQuery dispatches one transform round and returns a channel
	// of responses. The channel is closed once the engine emits a
	// terminal message (Success, InvalidQuery, or InternalError) or the
	// stream ends; Progress messages may precede any number of times
	// before the terminal one.
	ExecuteQuery(ctx context.Context, req ExecuteQueryRequest) (<-chan Response, error)
	Close() error
}
