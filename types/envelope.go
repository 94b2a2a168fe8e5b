package types

import "time"

// origin anchors Created timestamps. time.Now carries a monotonic reading, so
// differences against it are immune to wall-clock adjustments.
var origin = time.Now()

/*
Envelope is the unit actually stored by every backend: the cached value plus its
caching metadata.

Wire form (canonical JSON codec):

	{"value": <T>, "ttl": <int|null>, "created": <float>, "version": <int|null>}

An envelope is never mutated once written. Rewriting a key builds a new envelope.
*/
type Envelope struct {

	// Value is the cached payload.
	Value any

	// TTL is the time-to-live in whole seconds. nil means the entry never expires by policy.
	TTL *int64

	// Created is a monotonic timestamp (seconds) taken at construction.
	// It is diagnostic only: expiry is tracked by the backend, not derived from it.
	Created float64

	// Version is an optional schema tag. It is not used for invalidation.
	Version *int64
}

// NewEnvelope wraps value. A zero ttl produces a nil TTL.
func NewEnvelope(value any, ttl time.Duration, now time.Time, version *int64) Envelope {
	env := Envelope{
		Value:   value,
		Created: MonotonicSeconds(now),
		Version: version,
	}
	if ttl > 0 {
		secs := int64(ttl / time.Second)
		env.TTL = &secs
	}
	return env
}

// TTLDuration converts the stored TTL back to a duration (0 when unset).
func (e Envelope) TTLDuration() time.Duration {
	if e.TTL == nil {
		return 0
	}
	return time.Duration(*e.TTL) * time.Second
}

// MonotonicSeconds returns the seconds elapsed between process start and now.
func MonotonicSeconds(now time.Time) float64 {
	return now.Sub(origin).Seconds()
}
