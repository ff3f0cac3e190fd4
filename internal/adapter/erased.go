package adapter

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErasedAdapter is the type-erased view of an Adapter[T] that the service
// registry stores. Produced by Erase.
type ErasedAdapter interface {
	Functions() []FunctionSpec
	InvokeOnInstance(ctx context.Context, instance any, ordinal int, args []json.RawMessage) (json.RawMessage, error)
	NewOutboundProxy(callHandler CallHandler) any
}

type erased[T any] struct {
	inner Adapter[T]
}

// Erase wraps a concrete Adapter[T] so it can be stored alongside adapters
// for other interfaces in the Endpoint's service registry.
func Erase[T any](a Adapter[T]) ErasedAdapter {
	return erased[T]{inner: a}
}

func (e erased[T]) Functions() []FunctionSpec { return e.inner.Functions() }

func (e erased[T]) InvokeOnInstance(ctx context.Context, instance any, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	typed, ok := instance.(T)
	if !ok {
		return nil, fmt.Errorf("adapter: instance is %T, not %T", instance, typed)
	}
	return e.inner.InvokeOnInstance(ctx, typed, ordinal, args)
}

func (e erased[T]) NewOutboundProxy(callHandler CallHandler) any {
	return e.inner.NewOutboundProxy(callHandler)
}
