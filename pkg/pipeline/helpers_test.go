package pipeline_test

import (
	"context"
	"testing"
)

func feed(t *testing.T, total int) func(ctx context.Context, rootChan chan<- int) error {
	t.Helper()

	return func(ctx context.Context, rootChan chan<- int) error {
		for i := range total {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case rootChan <- i:
			}
		}

		return nil
	}
}

func collect(got *[]int) func(ctx context.Context, in int) error {
	return func(_ context.Context, in int) error {
		*got = append(*got, in)

		return nil
	}
}
