package redisx

import "time"

const (
	// Public order view: order_public:{order_id} -> PublicOrder JSON
	KeyOrderPublic = "order_public:%s"

	// Submit idempotency: idem:order:submit:{Idempotency-Key} -> SubmitResult JSON
	KeyIdemOrderSubmit = "idem:order:submit:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Daily counters: hash stats:{YYYY-MM-DD}
	KeyStats = "stats:%s"
)

// submissionPending marks an idempotency key whose submit is still running.
// Stored responses are JSON objects, so they never collide with it.
const submissionPending = "pending"

var (
	TTLIdempotency        = 24 * time.Hour
	TTLIdempotencyPending = 30 * time.Second
	TTLPublicCache        = 5 * time.Minute
	TTLDedup              = 48 * time.Hour
	TTLStats              = 8 * 24 * time.Hour
)
