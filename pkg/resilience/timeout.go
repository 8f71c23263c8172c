package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
)

// Bound calls fn with a context that expires after limit. An expired call
// fails with both apperrors.ErrTimeout and context.DeadlineExceeded, naming
// the operation. A non-positive limit leaves ctx as is.
// fn must honour its context.
func Bound(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	err := fn(bounded)
	if err != nil && ctx.Err() == nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w (limit: %v)", name, apperrors.ErrTimeout, context.DeadlineExceeded, limit)
	}
	return err
}
