package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/svcidl/internal/wire"
)

// Emitter collects the events a handler emits during one call.
type Emitter struct {
	codec *wire.Codec

	mu   sync.Mutex
	logs []wire.Log
}

// Emit encodes an event declared by the interface and records it.
func (e *Emitter) Emit(event string, rec wire.Record) error {
	l, err := e.codec.EncodeEvent(event, rec)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.logs = append(e.logs, l)
	e.mu.Unlock()
	return nil
}

func (e *Emitter) drain() []wire.Log {
	e.mu.Lock()
	defer e.mu.Unlock()
	logs := e.logs
	e.logs = nil
	return logs
}

type emitterKey struct{}

func withEmitter(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// ErrNoEmitter is returned by Emit outside a dispatched call.
var ErrNoEmitter = errors.New("dispatch: no emitter in context")

// EmitterFrom returns the emitter of the call running in ctx.
func EmitterFrom(ctx context.Context) (*Emitter, bool) {
	e, ok := ctx.Value(emitterKey{}).(*Emitter)
	return e, ok
}

// Emit records an event on the emitter carried by ctx.
func Emit(ctx context.Context, event string, rec wire.Record) error {
	e, ok := EmitterFrom(ctx)
	if !ok {
		return ErrNoEmitter
	}
	return e.Emit(event, rec)
}
