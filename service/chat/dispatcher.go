package chat

import (
	"LinkHub/logger"
	"LinkHub/service/fanout"
	"LinkHub/tools/errs"

	"go.uber.org/zap"
)

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Event()] = h }

func (d *Dispatcher) GetHandler(event string) Handler {
	h, ok := d.handlers[event]
	if !ok {
		logger.Debug("[Dispatcher] no handler", zap.String("event", event))
		return nil
	}
	return h
}

func (d *Dispatcher) Events() []string {
	out := make([]string, 0, len(d.handlers))
	for e := range d.handlers {
		out = append(out, e)
	}
	return out
}

// Dispatch routes f to its handler; unknown events are an ErrArgs.
func (d *Dispatcher) Dispatch(ctx *ChatContext, f *fanout.Frame, conn *WsConn) error {
	h := d.GetHandler(f.Event)
	if h == nil {
		return errs.ErrArgs.WrapMsg("no handler", "event", f.Event)
	}
	return h.Handle(ctx, f, conn)
}
