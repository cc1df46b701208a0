package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

// classifyStatus maps a non-2xx HTTP status to a transient or fatal error.
func classifyStatus(instance string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	err := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return &domain.TransientError{Instance: instance, StatusCode: status, Err: err}
	default:
		return &domain.FatalError{Instance: instance, StatusCode: status, Err: err}
	}
}

// classifyTransport wraps a failure that happened before a status was read.
// Timeouts and connection errors are all retryable.
func classifyTransport(instance string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.TransientError{Instance: instance, Err: err}
}

// readBody reads at most maxBodyBytes of the response.
func readBody(instance string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(instance, fmt.Errorf("read response: %w", err))
	}
	return body, nil
}

func decodeError(instance string, err error) error {
	return &domain.TransientError{Instance: instance, Err: fmt.Errorf("decode response: %w", err)}
}
