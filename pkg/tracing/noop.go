package tracing

import (
	"context"

	"github.com/effective-security/azurellm/pkg/callbacks"
)

var noop = &Noop{}

// Noop is a Sink that drops all events.
type Noop struct {
	callbacks.Noop
}

var _ Sink = (*Noop)(nil)

// NewNoop returns Noop sink.
func NewNoop() *Noop {
	return noop
}

// Name returns "noop".
func (n *Noop) Name() string {
	return "noop"
}

// Flush does nothing.
func (n *Noop) Flush(context.Context) error {
	return nil
}

// Close does nothing.
func (n *Noop) Close(context.Context) error {
	return nil
}
