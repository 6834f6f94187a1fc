package redisx

import "time"

const (
	// Create-order idempotency: idem:order:create:{subject}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Order read cache: order:{order_id} -> hash {rev, data: order JSON}
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Notification feed per subject, newest first: feed:{subject}
	KeyFeed = "feed:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLFeed        = 7 * 24 * time.Hour
)
