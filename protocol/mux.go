package protocol

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/metrics"
)

// Mux is an in-process Router and dispatcher.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      logrus.FieldLogger
	observer metrics.Observer
}

var _ Router = (*Mux)(nil)

// NewMux returns an empty Mux. Either argument may be nil.
func NewMux(log logrus.FieldLogger, observer metrics.Observer) *Mux {
	return &Mux{
		handlers: make(map[string]HandlerFunc),
		log:      logging.OrDiscard(log),
		observer: metrics.OrNop(observer),
	}
}

// Handle implements Router. Registering a type twice replaces the handler.
func (m *Mux) Handle(msgType string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[msgType] = h
}

// Types returns the registered message types.
func (m *Mux) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch runs the handler for msgType.
func (m *Mux) Dispatch(ctx context.Context, msgType string, params json.RawMessage) ([]any, error) {
	m.mu.RLock()
	h, ok := m.handlers[msgType]
	m.mu.RUnlock()
	if !ok {
		err := NewError(CodeUnknownType, msgType)
		m.observer.ProviderMessage(msgType, err.Code)
		return nil, err
	}

	result, err := h(ctx, params)
	code := CodeOf(err)
	m.observer.ProviderMessage(msgType, code)
	if err != nil {
		entry := m.log.WithFields(logrus.Fields{"msg_type": msgType, "code": code})
		if code == CodeInternal {
			entry.WithError(err).Error("handler failed")
		} else {
			entry.Debug(err.Error())
		}
		return nil, err
	}
	return result, nil
}

// LocalCaller calls a Mux in-process with the same JSON encoding the HTTP
// transport uses.
type LocalCaller struct {
	Mux *Mux
}

var _ Caller = (*LocalCaller)(nil)

// Call implements Caller.
func (c *LocalCaller) Call(ctx context.Context, msgType string, params any, results ...any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return NewError(CodeInvalidParams, err.Error())
	}
	tuple, err := c.Mux.Dispatch(ctx, msgType, raw)
	if err != nil {
		return AsError(err)
	}
	encoded, err := encodeTuple(tuple)
	if err != nil {
		return err
	}
	return decodeTuple(encoded, results)
}

func encodeTuple(tuple []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(tuple))
	for i, v := range tuple {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, NewError(CodeInternal, "encode result: "+err.Error())
		}
		out[i] = b
	}
	return out, nil
}
