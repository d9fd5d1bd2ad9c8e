package queue

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes retry delays: base * 2^(attempt-1), capped at
// ceiling, plus up to 10% jitter so competing workers spread out.
type BackoffPolicy struct {
	Base    time.Duration
	Ceiling time.Duration
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Ceiling {
			delay = p.Ceiling
			break
		}
	}
	if delay > p.Ceiling {
		delay = p.Ceiling
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
