package mailer

import (
	"math/rand"
	"time"
)

// Delivery happens inside the OTP request, so retries are short.
var retryDelays = []time.Duration{
	200 * time.Millisecond,
	800 * time.Millisecond,
}

// JitterFactor is the ±percentage of jitter applied to delays.
const JitterFactor = 0.2

// MaxAttempts is the number of delivery attempts per message.
var MaxAttempts = len(retryDelays) + 1

// nextRetryDelay returns the delay after the given 0-indexed failed attempt.
func nextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}

	base := retryDelays[attempt]
	jitter := (rand.Float64()*2 - 1) * float64(base) * JitterFactor
	return time.Duration(float64(base) + jitter)
}
