package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. Backends and the memoization
wrapper call these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when a lookup returns an unexpired value.
	Hit()

	// Miss is called when a lookup finds nothing (absent or expired).
	Miss()

	// Expire is called when an expired entry is lazily removed on access.
	Expire()

	// Invalidate is called when a key, or the whole namespace, is explicitly removed.
	Invalidate()

	// Refresh is called when a memoized function is re-run to overwrite its entry.
	Refresh()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

If someone does not care about metrics, the cache still works without
nil pointer checks everywhere.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()        {}
func (NoopMetrics) Miss()       {}
func (NoopMetrics) Expire()     {}
func (NoopMetrics) Invalidate() {}
func (NoopMetrics) Refresh()    {}
