package expiration

import (
	"time"

	"github.com/krisalay/memo-cache/types"
)

/*
AbsoluteTTL pins the expiry instant at write time: ExpireAt = now + TTL.
Reads never move it. A record written without a TTL never expires.
*/
type AbsoluteTTL struct{}

/*
IsExpired reports whether now has reached the record's expiry instant.
An entry is alive strictly before ExpireAt.
*/
func (AbsoluteTTL) IsExpired(rec *types.Record, now time.Time) bool {
	return !rec.ExpireAt.IsZero() && !now.Before(rec.ExpireAt)
}

// OnWrite computes the absolute expiry once.
func (AbsoluteTTL) OnWrite(rec *types.Record, now time.Time) {
	if rec.TTL > 0 {
		rec.ExpireAt = now.Add(rec.TTL)
		return
	}
	rec.ExpireAt = time.Time{}
}
