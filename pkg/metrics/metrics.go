package metrics

import "time"

// Fetch outcomes reported to Metrics.Fetch.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

// Metrics receives query cache events, labelled by resource.
type Metrics interface {
	// Hit is called when a fresh cached value satisfies a query.
	Hit(resource string)
	// Miss is called when a query has to start a fetch.
	Miss(resource string)
	// Join is called when a query attaches to a fetch already in flight.
	Join(resource string)
	// Discard is called when a superseded response is dropped.
	Discard(resource string)
	// Fetch is called when a fetch completes.
	Fetch(resource, outcome string, duration time.Duration)
}

// Noop drops all events.
type Noop struct{}

func (Noop) Hit(string) {}
func (Noop) Miss(string) {}
func (Noop) Join(string) {}
func (Noop) Discard(string) {}
func (Noop) Fetch(string, string, time.Duration) {}
