package health

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Checker interface {
	Check() error
}

// CheckerFunc adapts a plain function to a Checker.
type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}

// NewPingChecker returns a Checker that calls ping with a bounded context, e.g. a store or redis ping.
func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			return errors.Wrapf(err, "%s is unhealthy", name)
		}
		return nil
	})
}
