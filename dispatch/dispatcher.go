package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"arena/logger"
	"arena/protocol"
)

var (
	ErrUnknownType      = errors.New("unknown message type")
	ErrDuplicateHandler = errors.New("duplicate handler")
)

var tracer = otel.Tracer("arena/dispatch")

// Handler serves one message type.
type Handler interface {
	Type() string
	Handle(ctx context.Context, connID string, payload json.RawMessage) error
}

type funcHandler struct {
	typ string
	fn  HandlerFunc
}

func (h funcHandler) Type() string { return h.typ }

func (h funcHandler) Handle(ctx context.Context, connID string, payload json.RawMessage) error {
	return h.fn(ctx, connID, payload)
}

// Handle binds fn to a message type.
func Handle(typ string, fn HandlerFunc) Handler {
	return funcHandler{typ: typ, fn: fn}
}

// Dispatcher routes envelopes to handlers by type tag, ignoring case.
// It is immutable after New and safe for concurrent use.
type Dispatcher struct {
	handlers map[string]Handler
	log      logrus.FieldLogger
}

func New(handlers ...Handler) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]Handler, len(handlers)),
		log:      logger.Log,
	}
	for _, h := range handlers {
		key := strings.ToLower(h.Type())
		if key == "" {
			return nil, errors.New("handler with empty type")
		}
		if _, exists := d.handlers[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHandler, h.Type())
		}
		d.handlers[key] = h
	}
	return d, nil
}

// WithLogger replaces the logger and returns d.
func (d *Dispatcher) WithLogger(l logrus.FieldLogger) *Dispatcher {
	d.log = l
	return d
}

// Types lists the registered tags in lower case.
func (d *Dispatcher) Types() []string {
	out := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	return out
}

// Dispatch decodes raw and runs the matching handler. Unknown types and
// malformed messages are reported but change nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, raw []byte) (err error) {
	ctx, span := tracer.Start(ctx, "dispatch.Dispatch", trace.WithAttributes(attribute.String("arena.conn", connID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := d.log.WithField("conn", connID)

	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		log.WithError(err).Warn("dropping malformed message")
		return err
	}
	span.SetAttributes(attribute.String("arena.message_type", env.Type))

	h, ok := d.handlers[strings.ToLower(env.Type)]
	if !ok {
		log.WithField("type", env.Type).Warn("no handler for message type")
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := h.Handle(ctx, connID, env.Payload); err != nil {
		log.WithError(err).WithField("type", env.Type).Warn("handler failed")
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	log.WithField("type", env.Type).Debug("dispatched")
	return nil
}
