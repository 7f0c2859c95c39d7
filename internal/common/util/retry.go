package util

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

type RetryConfig struct {
	// Total number of attempts, including the first one.
	MaxAttempts    uint `validate:"gte=1"`
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// WithRetry runs action until it succeeds, the attempts in config are used up or ctx is done. Backoff between
// attempts is exponential starting at InitialBackoff and capped at MaxBackoff. The last error is returned.
// Extra options, such as retry.RetryIf, are applied after the defaults.
func WithRetry(ctx context.Context, config RetryConfig, action func() error, opts ...retry.Option) error {
	attempts := config.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	options := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(config.InitialBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if config.MaxBackoff > 0 {
		options = append(options, retry.MaxDelay(config.MaxBackoff))
	}
	return retry.Do(action, append(options, opts...)...)
}
