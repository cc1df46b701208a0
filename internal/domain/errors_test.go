package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	transient := &TransientError{Instance: "https://a", StatusCode: 503, Err: errors.New("unavailable")}
	fatal := &FatalError{Instance: "https://a", StatusCode: 401, Err: errors.New("unauthorized")}
	exhausted := &ExhaustedError{Attempts: 3, Last: transient}

	if !IsTransient(fmt.Errorf("wrapped: %w", transient)) {
		t.Error("wrapped transient not detected")
	}
	if IsTransient(fatal) {
		t.Error("fatal reported as transient")
	}
	if !IsFatal(fatal) {
		t.Error("fatal not detected")
	}
	if !IsTransient(exhausted) {
		t.Error("exhausted should expose its last error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := Cancelled(ctx.Err())
	if !errors.Is(c, ErrCancelled) || !errors.Is(c, context.Canceled) {
		t.Errorf("cancelled error does not wrap both sentinels: %v", c)
	}
	if !IsCancelled(context.DeadlineExceeded) {
		t.Error("deadline should count as cancellation")
	}
}
