package types

import "time"

// Record is what the in-memory backend keeps per key.
// ExpireAt is fixed at write time and never recomputed on read.
type Record struct {
	Key      any
	TTL      time.Duration
	ExpireAt time.Time // zero => no TTL
	Envelope Envelope
}
