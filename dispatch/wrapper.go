package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Validator is implemented by payloads that can check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// HandlerFunc is the raw contract every command handler is reduced to.
type HandlerFunc func(ctx context.Context, connID string, payload json.RawMessage) error

// TypedHandlerFunc works on an already decoded payload.
type TypedHandlerFunc[T any] func(ctx context.Context, connID string, payload T) error

// EmptyHandlerFunc is for commands that carry no data.
type EmptyHandlerFunc func(ctx context.Context, connID string) error

var errMissingPayload = errors.New("missing payload")

// WithPayload decodes and validates the payload before calling handler.
func WithPayload[T any](handler TypedHandlerFunc[T]) HandlerFunc {
	return func(ctx context.Context, connID string, raw json.RawMessage) error {
		if len(raw) == 0 || string(raw) == "null" {
			return errMissingPayload
		}

		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("invalid payload format: %w", err)
		}

		if v, ok := any(payload).(Validator); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
		}

		return handler(ctx, connID, payload)
	}
}

// WithEmptyPayload ignores whatever payload arrived.
func WithEmptyPayload(handler EmptyHandlerFunc) HandlerFunc {
	return func(ctx context.Context, connID string, _ json.RawMessage) error {
		return handler(ctx, connID)
	}
}
