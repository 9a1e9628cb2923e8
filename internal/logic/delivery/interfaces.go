package delivery

import (
	"context"
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
)

// Sender is the port for the outbound transport.
// Implementations return *Error for classified failures.
type Sender interface {
	Send(ctx context.Context, url string, event alert.Event) error
}

// dedupCache is the subset of the shared TTL cache used for duplicate suppression.
type dedupCache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) int
	Delete(key string) bool
}

// ResultSink is notified when an entry reaches a terminal state.
type ResultSink func(ctx context.Context, result Result)
