package scheduler

import "time"

const (
	defaultBaseBackoff = 5 * time.Second
	defaultMaxBackoff  = 5 * time.Minute
	defaultMaxRetries  = 5
)

// RetryPolicy governs re-delivery of queued commands: exponential backoff
// doubling from BaseBackoff up to MaxBackoff, with MaxRetries failed
// attempts before a command is dead-lettered.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  defaultMaxRetries,
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
	}
}

func normalizeRetryPolicy(in RetryPolicy) RetryPolicy {
	out := in
	if out.MaxRetries < 1 {
		out.MaxRetries = defaultMaxRetries
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = defaultBaseBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = defaultMaxBackoff
	}
	if out.MaxBackoff < out.BaseBackoff {
		out.MaxBackoff = out.BaseBackoff
	}
	return out
}

// backoffForRetry returns the delay before the given retry number, 1-based.
func (p RetryPolicy) backoffForRetry(retryNumber int) time.Duration {
	if retryNumber < 1 {
		retryNumber = 1
	}
	delay := p.BaseBackoff
	for i := 1; i < retryNumber; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}
