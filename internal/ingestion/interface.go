package ingestion

import "context"

// Processor handles one stored raw event identified by its ID. Implementations
// must return a retryable apperror when redelivery could succeed (transient
// database or downstream failures) and any other error when it cannot.
type Processor interface {
	ProcessEvent(ctx context.Context, eventID string) error
}
