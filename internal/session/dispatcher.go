package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/protocol"
)

// Handler consumes one typed inbound message.
type Handler func(env protocol.Envelope)

// Dispatcher fans incoming frames out to the handlers registered for their
// type. Unknown or malformed frames are logged and dropped; a panicking
// handler is contained and never takes down the session or its sibling
// handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// On registers a handler for a message type. Multiple handlers per type are
// invoked in registration order.
func (d *Dispatcher) On(msgType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], h)
}

// Dispatch parses a raw frame and delivers it.
func (d *Dispatcher) Dispatch(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		d.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[env.Type]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug("dropping frame with no registered handler",
			zap.String("type", env.Type),
		)
		return
	}
	for _, h := range handlers {
		d.invoke(env, h)
	}
}

func (d *Dispatcher) invoke(env protocol.Envelope, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("message handler panicked",
				zap.String("type", env.Type),
				zap.Any("panic", r),
			)
		}
	}()
	h(env)
}
