package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the job with the given payload. Returning an error
	// schedules a retry until the retry limit is reached.
	Handle(ctx context.Context, payload interface{}) error
}

// Enqueuer is implemented by RedisQueue and LocalQueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
	Stop(ctx context.Context) error
}
