package room

import "time"

// SetRetry shortens the cascade retry policy for tests.
func SetRetry(r *Registry, attempts int, base time.Duration) {
	r.retry = retryPolicy{attempts: attempts, base: base}
}
