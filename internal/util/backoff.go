package util

import (
	"math"
	"math/rand"
	"time"
)

// BackoffWithJitter grows min by factor^attempt, caps it at max and adds a
// random jitter inside [0, base]. The result never exceeds max.
func BackoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if factor < 1 {
		factor = 1
	}

	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min || base <= 0 || rng == nil {
		return base
	}

	jitter := time.Duration(rng.Int63n(int64(base) + 1))
	result := base + jitter
	if result > max {
		return max
	}

	return result
}

func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
